package services

import (
	"math"
	"sort"
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// RequestAnalytics summarizes how the user has responded to past requests.
type RequestAnalytics struct {
	AverageResponseMinutes *float64 `json:"averageResponseMinutes"`
	CompletionStreakDays   int      `json:"completionStreakDays"`
	CompletionRate30d      *float64 `json:"completionRate30d"`
	ResolvedCount30d       int      `json:"resolvedCount30d"`
	CompletedCount30d      int      `json:"completedCount30d"`
}

// ComputeAnalytics derives RequestAnalytics from request history. Rows outside
// window are still used for response latency and the completion streak.
func ComputeAnalytics(history []*entities.Request, now time.Time, window time.Duration) RequestAnalytics {
	var (
		result        RequestAnalytics
		latencyTotal  float64
		latencyCount  int
		completionSet = make(map[string]struct{})
	)

	for _, r := range history {
		if r == nil {
			continue
		}
		status := r.Status()
		resolvedAt := r.ResolvedAt()

		if status.IsTerminal() && resolvedAt != nil && !resolvedAt.Before(r.RequestedAt()) {
			latencyTotal += resolvedAt.Sub(r.RequestedAt()).Minutes()
			latencyCount++
		}

		anchor := r.RequestedAt()
		if resolvedAt != nil {
			anchor = *resolvedAt
		}
		if !anchor.IsZero() && now.Sub(anchor) <= window {
			if status.IsTerminal() {
				result.ResolvedCount30d++
			}
			if status == valueobjects.RequestCompleted {
				result.CompletedCount30d++
			}
		}

		if status == valueobjects.RequestCompleted && resolvedAt != nil {
			completionSet[entities.DateKey(*resolvedAt)] = struct{}{}
		}
	}

	if latencyCount > 0 {
		avg := round1(latencyTotal / float64(latencyCount))
		result.AverageResponseMinutes = &avg
	}
	if result.ResolvedCount30d > 0 {
		rate := round1(float64(result.CompletedCount30d) / float64(result.ResolvedCount30d) * 100)
		result.CompletionRate30d = &rate
	}
	result.CompletionStreakDays = completionStreak(completionSet)
	return result
}

// completionStreak counts consecutive UTC days ending at the most recent completion day.
func completionStreak(days map[string]struct{}) int {
	if len(days) == 0 {
		return 0
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	cursor, err := time.Parse(entities.DateLayout, keys[0])
	if err != nil {
		return 0
	}
	streak := 1
	for _, key := range keys[1:] {
		cursor = cursor.AddDate(0, 0, -1)
		if key != entities.DateKey(cursor) {
			break
		}
		streak++
	}
	return streak
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
