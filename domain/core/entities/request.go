package entities

import (
	"time"

	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	pkgerrors "companionlife/pkg/errors"
)

// Response styles recorded on a request.
const (
	ResponseAccepted  = "accepted"
	ResponseCompleted = "completed"
	ResponseDeclined  = "declined"
	ResponseSnoozed   = "snoozed"
)

// RequestDraft is the content-source output used to open a new request.
type RequestDraft struct {
	RequestType     string
	Title           string
	Prompt          string
	ConsequenceHint string
	Urgency         valueobjects.Urgency
	DueAt           *time.Time
	Context         valueobjects.RequestContext
}

// RequestSnapshot is the persisted shape of a request.
type RequestSnapshot struct {
	ID              valueobjects.RequestID      `json:"id"`
	CompanionID     valueobjects.CompanionID    `json:"companionId"`
	RequestType     string                      `json:"requestType"`
	Title           string                      `json:"title"`
	Prompt          string                      `json:"prompt"`
	Urgency         valueobjects.Urgency        `json:"urgency"`
	Status          valueobjects.RequestStatus  `json:"status"`
	DueAt           *time.Time                  `json:"dueAt"`
	RequestedAt     time.Time                   `json:"requestedAt"`
	ResolvedAt      *time.Time                  `json:"resolvedAt"`
	ResponseStyle   *string                     `json:"responseStyle"`
	ConsequenceHint *string                     `json:"consequenceHint"`
	RequestContext  valueobjects.RequestContext `json:"requestContext"`
}

// Request is a companion-initiated, time-bounded ask.
type Request struct {
	id            valueobjects.RequestID
	companionID   valueobjects.CompanionID
	content       valueobjects.RequestContent
	urgency       valueobjects.Urgency
	status        valueobjects.RequestStatus
	dueAt         *time.Time
	requestedAt   time.Time
	resolvedAt    *time.Time
	responseStyle *string
	context       valueobjects.RequestContext

	events []events.DomainEvent
}

// NewRequest opens a pending request from a draft.
func NewRequest(companionID valueobjects.CompanionID, draft RequestDraft, requestedAt time.Time) (*Request, error) {
	if companionID == "" {
		return nil, pkgerrors.NewValidationError("companionID cannot be empty")
	}
	if !draft.Urgency.IsValid() {
		return nil, pkgerrors.NewValidationError("invalid urgency")
	}
	content, err := valueobjects.NewRequestContent(draft.RequestType, draft.Title, draft.Prompt, draft.ConsequenceHint)
	if err != nil {
		return nil, err
	}

	ctx := draft.Context
	if ctx == nil {
		ctx = valueobjects.NewRequestContext()
	}

	r := &Request{
		id:          valueobjects.NewRequestID(),
		companionID: companionID,
		content:     content,
		urgency:     draft.Urgency,
		status:      valueobjects.RequestPending,
		dueAt:       utcPtr(draft.DueAt),
		requestedAt: requestedAt.UTC(),
		context:     ctx,
	}
	r.addEvent(events.NewRequestCreated(companionID, r.id, content.RequestType(), r.urgency, r.dueAt, r.requestedAt))
	return r, nil
}

// ReconstructRequest rebuilds a request from storage without validation or events.
// A stored "snoozed" status is normalized back to pending: snoozing never
// releases the slot.
func ReconstructRequest(s RequestSnapshot) *Request {
	hint := ""
	if s.ConsequenceHint != nil {
		hint = *s.ConsequenceHint
	}
	content, err := valueobjects.NewRequestContent(s.RequestType, s.Title, s.Prompt, hint)
	if err != nil {
		// Legacy rows may carry copy we would reject today; keep them readable.
		content, _ = valueobjects.NewRequestContent(fallback(s.RequestType, "unknown"), fallback(s.Title, "Untitled request"), s.Prompt, "")
	}

	status := s.Status
	responseStyle := s.ResponseStyle
	if status == valueobjects.RequestSnoozed {
		status = valueobjects.RequestPending
		if responseStyle == nil {
			style := ResponseSnoozed
			responseStyle = &style
		}
	}

	ctx := s.RequestContext
	if ctx == nil {
		ctx = valueobjects.NewRequestContext()
	}

	return &Request{
		id:            s.ID,
		companionID:   s.CompanionID,
		content:       content,
		urgency:       s.Urgency,
		status:        status,
		dueAt:         utcPtr(s.DueAt),
		requestedAt:   s.RequestedAt.UTC(),
		resolvedAt:    utcPtr(s.ResolvedAt),
		responseStyle: responseStyle,
		context:       ctx,
	}
}

func (r *Request) ID() valueobjects.RequestID { return r.id }
func (r *Request) CompanionID() valueobjects.CompanionID { return r.companionID }
func (r *Request) RequestType() string { return r.content.RequestType() }
func (r *Request) Title() string { return r.content.Title() }
func (r *Request) Prompt() string { return r.content.Prompt() }
func (r *Request) ConsequenceHint() *string { return r.content.ConsequenceHint() }
func (r *Request) Urgency() valueobjects.Urgency { return r.urgency }
func (r *Request) Status() valueobjects.RequestStatus { return r.status }
func (r *Request) DueAt() *time.Time { return r.dueAt }
func (r *Request) RequestedAt() time.Time { return r.requestedAt }
func (r *Request) ResolvedAt() *time.Time { return r.resolvedAt }
func (r *Request) ResponseStyle() *string { return r.responseStyle }
func (r *Request) Context() valueobjects.RequestContext { return r.context.Clone() }
func (r *Request) IsOpen() bool { return r.status.IsOpen() }

// Window classifies the request's due time at now.
func (r *Request) Window(now time.Time, bounds valueobjects.WindowBounds) valueobjects.Window {
	return valueobjects.ClassifyWindow(r.dueAt, now, bounds)
}

// Accept moves a pending request to accepted. Accepting twice is a no-op.
func (r *Request) Accept(now time.Time) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if r.status == valueobjects.RequestAccepted {
		return nil
	}

	from := r.status
	r.status = valueobjects.RequestAccepted
	r.setResponseStyle(ResponseAccepted)
	r.addEvent(events.NewRequestStatusChanged(events.TypeRequestAccepted, r.companionID, r.id, from, r.status, nil, now.UTC()))
	return nil
}

// Complete resolves the request and frees its slot.
func (r *Request) Complete(now time.Time) error {
	return r.resolve(valueobjects.RequestCompleted, ResponseCompleted, events.TypeRequestCompleted, now)
}

// Decline resolves the request and frees its slot.
func (r *Request) Decline(now time.Time) error {
	return r.resolve(valueobjects.RequestDeclined, ResponseDeclined, events.TypeRequestDeclined, now)
}

// Snooze pushes the due time to now+extension. The status is left untouched.
func (r *Request) Snooze(now time.Time, extension time.Duration) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if extension <= 0 {
		return pkgerrors.NewValidationError("snooze extension must be positive")
	}

	previous := r.dueAt
	due := now.UTC().Add(extension)
	r.dueAt = &due
	r.setResponseStyle(ResponseSnoozed)
	r.addEvent(events.NewRequestSnoozed(r.companionID, r.id, previous, due, now.UTC()))
	return nil
}

func (r *Request) resolve(to valueobjects.RequestStatus, style, eventType string, now time.Time) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}

	from := r.status
	resolvedAt := now.UTC()
	r.status = to
	r.resolvedAt = &resolvedAt
	r.setResponseStyle(style)
	r.addEvent(events.NewRequestStatusChanged(eventType, r.companionID, r.id, from, to, r.resolvedAt, resolvedAt))
	return nil
}

func (r *Request) ensureOpen() error {
	if r.status.IsTerminal() {
		return pkgerrors.NewAlreadyResolvedError("request", r.id.String(), string(r.status))
	}
	return nil
}

func (r *Request) setResponseStyle(style string) {
	r.responseStyle = &style
}

// Snapshot returns the persisted shape of the request.
func (r *Request) Snapshot() RequestSnapshot {
	return RequestSnapshot{
		ID:              r.id,
		CompanionID:     r.companionID,
		RequestType:     r.content.RequestType(),
		Title:           r.content.Title(),
		Prompt:          r.content.Prompt(),
		Urgency:         r.urgency,
		Status:          r.status,
		DueAt:           r.dueAt,
		RequestedAt:     r.requestedAt,
		ResolvedAt:      r.resolvedAt,
		ResponseStyle:   r.responseStyle,
		ConsequenceHint: r.content.ConsequenceHint(),
		RequestContext:  r.context.Clone(),
	}
}

// GetUncommittedEvents returns all uncommitted domain events
func (r *Request) GetUncommittedEvents() []events.DomainEvent {
	return r.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (r *Request) MarkEventsAsCommitted() {
	r.events = nil
}

func (r *Request) addEvent(event events.DomainEvent) {
	r.events = append(r.events, event)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
