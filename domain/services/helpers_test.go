package services

import (
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type requestOpt func(*entities.RequestSnapshot)

func withStatus(s valueobjects.RequestStatus) requestOpt {
	return func(snap *entities.RequestSnapshot) { snap.Status = s }
}

func withNoDue() requestOpt {
	return func(snap *entities.RequestSnapshot) { snap.DueAt = nil }
}

func withResolved(requestedAgo, resolvedAgo time.Duration) requestOpt {
	return func(snap *entities.RequestSnapshot) {
		snap.RequestedAt = now.Add(-requestedAgo)
		resolved := now.Add(-resolvedAgo)
		snap.ResolvedAt = &resolved
	}
}

// buildRequest creates a stored request due dueIn from now.
func buildRequest(title string, urgency valueobjects.Urgency, dueIn time.Duration, opts ...requestOpt) *entities.Request {
	due := now.Add(dueIn)
	snap := entities.RequestSnapshot{
		ID:          valueobjects.NewRequestID(),
		CompanionID: "companion-1",
		RequestType: "check_in",
		Title:       title,
		Prompt:      "prompt",
		Urgency:     urgency,
		Status:      valueobjects.RequestPending,
		DueAt:       &due,
		RequestedAt: now.Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&snap)
	}
	return entities.ReconstructRequest(snap)
}
