package services

import (
	"testing"
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(ranked []RankedRequest) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Request.Title()
	}
	return out
}

func TestRankRequests_WeightThenWindow(t *testing.T) {
	// Arrange
	requests := []*entities.Request{
		buildRequest("gentle soon", valueobjects.UrgencyGentle, 10*time.Minute),
		buildRequest("critical later", valueobjects.UrgencyCritical, 5*time.Hour),
		buildRequest("important", valueobjects.UrgencyImportant, time.Hour),
		buildRequest("critical overdue", valueobjects.UrgencyCritical, -30*time.Minute),
	}

	// Act
	ranked := RankRequests(requests, now, valueobjects.DefaultWindowBounds())

	// Assert
	assert.Equal(t, []string{"critical overdue", "critical later", "important", "gentle soon"}, titles(ranked))
	assert.True(t, ranked[0].Window.Overdue)
}

func TestRankRequests_NoDueSortsLast(t *testing.T) {
	requests := []*entities.Request{
		buildRequest("no window", valueobjects.UrgencyImportant, 0, withNoDue()),
		buildRequest("far", valueobjects.UrgencyImportant, 72*time.Hour),
		buildRequest("near", valueobjects.UrgencyImportant, 3*time.Hour),
	}

	ranked := RankRequests(requests, now, valueobjects.DefaultWindowBounds())

	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"near", "far", "no window"}, titles(ranked))
	assert.Equal(t, valueobjects.StageNone, ranked[2].Window.Stage)
}

func TestRankRequests_StableOnTies(t *testing.T) {
	requests := []*entities.Request{
		buildRequest("first", valueobjects.UrgencyGentle, 0, withNoDue()),
		buildRequest("second", valueobjects.UrgencyGentle, 0, withNoDue()),
		nil,
		buildRequest("third", valueobjects.UrgencyGentle, 0, withNoDue()),
	}

	ranked := RankRequests(requests, now, valueobjects.DefaultWindowBounds())

	assert.Equal(t, []string{"first", "second", "third"}, titles(ranked))
}

func TestFilterRanked(t *testing.T) {
	ranked := RankRequests([]*entities.Request{
		buildRequest("c", valueobjects.UrgencyCritical, -time.Minute),
		buildRequest("i", valueobjects.UrgencyImportant, time.Hour),
		buildRequest("g", valueobjects.UrgencyGentle, time.Hour),
	}, now, valueobjects.DefaultWindowBounds())

	tests := []struct {
		name   string
		filter RequestFilter
		want   []string
	}{
		{"all", FilterAll, []string{"c", "i", "g"}},
		{"critical", FilterCritical, []string{"c"}},
		{"important", FilterImportant, []string{"i"}},
		{"gentle", FilterGentle, []string{"g"}},
		{"overdue", FilterOverdue, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titles(FilterRanked(ranked, tt.filter)))
		})
	}
}

func TestParseRequestFilter(t *testing.T) {
	assert.Equal(t, FilterOverdue, ParseRequestFilter("overdue"))
	assert.Equal(t, FilterAll, ParseRequestFilter(""))
	assert.Equal(t, FilterAll, ParseRequestFilter("bogus"))
}
