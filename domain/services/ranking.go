package services

import (
	"sort"
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// RankedRequest pairs a request with its window at evaluation time.
type RankedRequest struct {
	Request *entities.Request
	Window  valueobjects.Window
}

// RequestFilter narrows a ranked list.
type RequestFilter string

const (
	FilterAll       RequestFilter = "all"
	FilterCritical  RequestFilter = "critical"
	FilterImportant RequestFilter = "important"
	FilterGentle    RequestFilter = "gentle"
	FilterOverdue   RequestFilter = "overdue"
)

// ParseRequestFilter maps unknown or empty values to FilterAll.
func ParseRequestFilter(s string) RequestFilter {
	switch f := RequestFilter(s); f {
	case FilterCritical, FilterImportant, FilterGentle, FilterOverdue:
		return f
	default:
		return FilterAll
	}
}

// RankRequests orders requests by urgency weight, then by window sort rank.
// The sort is stable so equal requests keep their input order.
func RankRequests(requests []*entities.Request, now time.Time, bounds valueobjects.WindowBounds) []RankedRequest {
	ranked := make([]RankedRequest, 0, len(requests))
	for _, r := range requests {
		if r == nil {
			continue
		}
		ranked = append(ranked, RankedRequest{Request: r, Window: r.Window(now, bounds)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		wi, wj := ranked[i].Request.Urgency().Weight(), ranked[j].Request.Urgency().Weight()
		if wi != wj {
			return wi > wj
		}
		return ranked[i].Window.SortRank < ranked[j].Window.SortRank
	})
	return ranked
}

// FilterRanked applies f to an already ranked list, preserving order.
func FilterRanked(ranked []RankedRequest, f RequestFilter) []RankedRequest {
	if f == FilterAll || f == "" {
		return ranked
	}
	out := make([]RankedRequest, 0, len(ranked))
	for _, entry := range ranked {
		switch f {
		case FilterOverdue:
			if entry.Window.Overdue {
				out = append(out, entry)
			}
		default:
			if string(entry.Request.Urgency()) == string(f) {
				out = append(out, entry)
			}
		}
	}
	return out
}
