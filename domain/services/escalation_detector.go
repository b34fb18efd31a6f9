package services

import (
	"fmt"
	"sync"
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// StageTransition records a single request crossing into a critical-class stage.
type StageTransition struct {
	RequestID valueobjects.RequestID   `json:"requestId"`
	Title     string                   `json:"title"`
	From      valueobjects.WindowStage `json:"from"`
	To        valueobjects.WindowStage `json:"to"`
}

// EscalationNotice is the one-shot notice raised for a tick with transitions.
type EscalationNotice struct {
	Message     string            `json:"message"`
	Transitions []StageTransition `json:"transitions"`
	ObservedAt  time.Time         `json:"observedAt"`
}

// Titles returns the titles of the transitioning requests in ranked order.
func (n *EscalationNotice) Titles() []string {
	titles := make([]string, len(n.Transitions))
	for i, t := range n.Transitions {
		titles[i] = t.Title
	}
	return titles
}

// RequestIDs returns the ids of the transitioning requests in ranked order.
func (n *EscalationNotice) RequestIDs() []valueobjects.RequestID {
	ids := make([]valueobjects.RequestID, len(n.Transitions))
	for i, t := range n.Transitions {
		ids[i] = t.RequestID
	}
	return ids
}

// EscalationDetector remembers the stage each request had on the previous tick.
// One detector belongs to one viewer session of one companion.
type EscalationDetector struct {
	mu       sync.Mutex
	bounds   valueobjects.WindowBounds
	previous map[valueobjects.RequestID]valueobjects.WindowStage
}

// NewEscalationDetector creates a detector with an empty stage history
func NewEscalationDetector(bounds valueobjects.WindowBounds) *EscalationDetector {
	return &EscalationDetector{
		bounds:   bounds,
		previous: make(map[valueobjects.RequestID]valueobjects.WindowStage),
	}
}

// Observe evaluates the open requests at now and returns a notice when at least one
// request moved from a non-critical stage into critical or overdue since the last call.
// First observations only seed history. Requests missing from open are forgotten.
func (d *EscalationDetector) Observe(open []*entities.Request, now time.Time) *EscalationNotice {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[valueobjects.RequestID]valueobjects.WindowStage, len(open))
	var transitions []StageTransition

	for _, entry := range RankRequests(open, now, d.bounds) {
		if !entry.Request.IsOpen() {
			continue
		}
		id := entry.Request.ID()
		stage := entry.Window.Stage
		next[id] = stage

		prev, seen := d.previous[id]
		if seen && !prev.IsCriticalClass() && stage.IsCriticalClass() {
			transitions = append(transitions, StageTransition{
				RequestID: id,
				Title:     entry.Request.Title(),
				From:      prev,
				To:        stage,
			})
		}
	}
	d.previous = next

	if len(transitions) == 0 {
		return nil
	}
	return &EscalationNotice{
		Message:     noticeMessage(transitions),
		Transitions: transitions,
		ObservedAt:  now,
	}
}

// Tracked returns how many requests have a recorded stage.
func (d *EscalationDetector) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.previous)
}

// Reset forgets all recorded stages.
func (d *EscalationDetector) Reset() {
	d.mu.Lock()
	d.previous = make(map[valueobjects.RequestID]valueobjects.WindowStage)
	d.mu.Unlock()
}

func noticeMessage(transitions []StageTransition) string {
	if len(transitions) == 1 {
		return fmt.Sprintf("%s entered a critical response window.", transitions[0].Title)
	}
	return fmt.Sprintf("%d autonomy events entered a critical response window.", len(transitions))
}
