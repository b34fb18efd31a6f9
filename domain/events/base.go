package events

import (
	"time"

	"companionlife/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string { return e.AggregateID }
func (e BaseEvent) GetEventType() string { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int { return e.Version }

const (
	TypeRequestCreated    = "companion.request.created"
	TypeRequestAccepted   = "companion.request.accepted"
	TypeRequestCompleted  = "companion.request.completed"
	TypeRequestDeclined   = "companion.request.declined"
	TypeRequestSnoozed    = "companion.request.snoozed"
	TypeRequestEscalated  = "companion.request.escalated"
	TypeRitualCreated     = "companion.ritual.created"
	TypeRitualCompleted   = "companion.ritual.completed"
	TypeDayTickProcessed  = "companion.day_tick.processed"
	TypeRequestsGenerated = "companion.requests.generated"
)

func newBase(aggregateID, eventType string, ts time.Time) BaseEvent {
	return BaseEvent{AggregateID: aggregateID, EventType: eventType, Timestamp: ts, Version: 1}
}

// Request events

// RequestCreated is raised when the orchestrator opens a new request
type RequestCreated struct {
	BaseEvent
	CompanionID valueobjects.CompanionID `json:"companion_id"`
	RequestID   valueobjects.RequestID   `json:"request_id"`
	RequestType string                   `json:"request_type"`
	Urgency     valueobjects.Urgency     `json:"urgency"`
	DueAt       *time.Time               `json:"due_at,omitempty"`
}

func NewRequestCreated(companionID valueobjects.CompanionID, requestID valueobjects.RequestID, requestType string, urgency valueobjects.Urgency, dueAt *time.Time, ts time.Time) RequestCreated {
	return RequestCreated{
		BaseEvent:   newBase(requestID.String(), TypeRequestCreated, ts),
		CompanionID: companionID,
		RequestID:   requestID,
		RequestType: requestType,
		Urgency:     urgency,
		DueAt:       dueAt,
	}
}

// RequestStatusChanged is raised for accept, complete and decline.
type RequestStatusChanged struct {
	BaseEvent
	CompanionID valueobjects.CompanionID   `json:"companion_id"`
	RequestID   valueobjects.RequestID     `json:"request_id"`
	From        valueobjects.RequestStatus `json:"from"`
	To          valueobjects.RequestStatus `json:"to"`
	ResolvedAt  *time.Time                 `json:"resolved_at,omitempty"`
}

func NewRequestStatusChanged(eventType string, companionID valueobjects.CompanionID, requestID valueobjects.RequestID, from, to valueobjects.RequestStatus, resolvedAt *time.Time, ts time.Time) RequestStatusChanged {
	return RequestStatusChanged{
		BaseEvent:   newBase(requestID.String(), eventType, ts),
		CompanionID: companionID,
		RequestID:   requestID,
		From:        from,
		To:          to,
		ResolvedAt:  resolvedAt,
	}
}

// RequestSnoozed is raised when a request's due time is pushed forward
type RequestSnoozed struct {
	BaseEvent
	CompanionID valueobjects.CompanionID `json:"companion_id"`
	RequestID   valueobjects.RequestID   `json:"request_id"`
	PreviousDue *time.Time               `json:"previous_due_at,omitempty"`
	DueAt       time.Time                `json:"due_at"`
}

func NewRequestSnoozed(companionID valueobjects.CompanionID, requestID valueobjects.RequestID, previous *time.Time, dueAt time.Time, ts time.Time) RequestSnoozed {
	return RequestSnoozed{
		BaseEvent:   newBase(requestID.String(), TypeRequestSnoozed, ts),
		CompanionID: companionID,
		RequestID:   requestID,
		PreviousDue: previous,
		DueAt:       dueAt,
	}
}

// RequestEscalated is raised when a request crosses into a critical-class window.
// Notification delivery consumes it.
type RequestEscalated struct {
	BaseEvent
	CompanionID valueobjects.CompanionID `json:"companion_id"`
	RequestID   valueobjects.RequestID   `json:"request_id"`
	Title       string                   `json:"title"`
	Stage       valueobjects.WindowStage `json:"stage"`
	SessionID   string                   `json:"session_id"`
}

func NewRequestEscalated(companionID valueobjects.CompanionID, requestID valueobjects.RequestID, title string, stage valueobjects.WindowStage, sessionID string, ts time.Time) RequestEscalated {
	return RequestEscalated{
		BaseEvent:   newBase(requestID.String(), TypeRequestEscalated, ts),
		CompanionID: companionID,
		RequestID:   requestID,
		Title:       title,
		Stage:       stage,
		SessionID:   sessionID,
	}
}

// Ritual events

type RitualCreated struct {
	BaseEvent
	CompanionID valueobjects.CompanionID `json:"companion_id"`
	RitualID    valueobjects.RitualID    `json:"ritual_id"`
	Code        string                   `json:"code"`
	RitualDate  string                   `json:"ritual_date"`
}

func NewRitualCreated(companionID valueobjects.CompanionID, ritualID valueobjects.RitualID, code, ritualDate string, ts time.Time) RitualCreated {
	return RitualCreated{
		BaseEvent:   newBase(ritualID.String(), TypeRitualCreated, ts),
		CompanionID: companionID,
		RitualID:    ritualID,
		Code:        code,
		RitualDate:  ritualDate,
	}
}

type RitualCompleted struct {
	BaseEvent
	CompanionID valueobjects.CompanionID `json:"companion_id"`
	RitualID    valueobjects.RitualID    `json:"ritual_id"`
	Code        string                   `json:"code"`
	BondDelta   float64                  `json:"bond_delta"`
	CareDelta   float64                  `json:"care_delta"`
}

func NewRitualCompleted(companionID valueobjects.CompanionID, ritualID valueobjects.RitualID, code string, bondDelta, careDelta float64, ts time.Time) RitualCompleted {
	return RitualCompleted{
		BaseEvent:   newBase(ritualID.String(), TypeRitualCompleted, ts),
		CompanionID: companionID,
		RitualID:    ritualID,
		Code:        code,
		BondDelta:   bondDelta,
		CareDelta:   careDelta,
	}
}

// Day cycle events

type DayTickProcessed struct {
	BaseEvent
	RitualDate            string                    `json:"ritual_date"`
	RitualsCreated        int                       `json:"rituals_created"`
	EmotionalArc          valueobjects.EmotionalArc `json:"emotional_arc"`
	RoutineStabilityScore float64                   `json:"routine_stability_score"`
	RequestFatigue        int                       `json:"request_fatigue"`
}

func NewDayTickProcessed(companionID valueobjects.CompanionID, ritualDate string, created int, arc valueobjects.EmotionalArc, stability float64, fatigue int, ts time.Time) DayTickProcessed {
	return DayTickProcessed{
		BaseEvent:             newBase(companionID.String(), TypeDayTickProcessed, ts),
		RitualDate:            ritualDate,
		RitualsCreated:        created,
		EmotionalArc:          arc,
		RoutineStabilityScore: stability,
		RequestFatigue:        fatigue,
	}
}

type RequestsGenerated struct {
	BaseEvent
	Generated int `json:"generated"`
	OpenCount int `json:"open_count"`
}

func NewRequestsGenerated(companionID valueobjects.CompanionID, generated, openCount int, ts time.Time) RequestsGenerated {
	return RequestsGenerated{
		BaseEvent: newBase(companionID.String(), TypeRequestsGenerated, ts),
		Generated: generated,
		OpenCount: openCount,
	}
}
