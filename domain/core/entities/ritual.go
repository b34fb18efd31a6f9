package entities

import (
	"time"

	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	pkgerrors "companionlife/pkg/errors"
)

// Defaults applied when a definition leaves its deltas unset.
const (
	DefaultBondDelta = 1.0
	DefaultCareDelta = 0.02
)

// RitualDefinition is the catalog entry a daily ritual is generated from.
type RitualDefinition struct {
	ID            string  `json:"id" yaml:"id"`
	Code          string  `json:"code" yaml:"code"`
	Title         string  `json:"title" yaml:"title"`
	Description   string  `json:"description" yaml:"description"`
	RitualType    string  `json:"ritualType" yaml:"ritual_type"`
	BaseBondDelta float64 `json:"baseBondDelta" yaml:"base_bond_delta"`
	BaseCareDelta float64 `json:"baseCareDelta" yaml:"base_care_delta"`
	CooldownHours int     `json:"cooldownHours" yaml:"cooldown_hours"`
}

// RitualSnapshot is the persisted shape of a ritual.
type RitualSnapshot struct {
	ID          valueobjects.RitualID     `json:"id"`
	CompanionID valueobjects.CompanionID  `json:"companionId"`
	RitualDate  string                    `json:"ritualDate"`
	Status      valueobjects.RitualStatus `json:"status"`
	Urgency     valueobjects.Urgency      `json:"urgency"`
	CompletedAt *time.Time                `json:"completedAt"`
	CreatedAt   time.Time                 `json:"createdAt"`
	Definition  RitualDefinition          `json:"ritualDef"`
}

// Ritual is a generated daily obligation. It completes exactly once.
type Ritual struct {
	id          valueobjects.RitualID
	companionID valueobjects.CompanionID
	ritualDate  string
	status      valueobjects.RitualStatus
	urgency     valueobjects.Urgency
	completedAt *time.Time
	createdAt   time.Time
	definition  RitualDefinition

	events []events.DomainEvent
}

// NewRitual schedules a pending ritual for ritualDate (YYYY-MM-DD).
func NewRitual(companionID valueobjects.CompanionID, ritualDate string, def RitualDefinition, urgency valueobjects.Urgency, now time.Time) (*Ritual, error) {
	if companionID == "" {
		return nil, pkgerrors.NewValidationError("companionID cannot be empty")
	}
	if _, err := time.Parse(DateLayout, ritualDate); err != nil {
		return nil, pkgerrors.NewValidationError("ritual date must be YYYY-MM-DD")
	}
	if def.Code == "" {
		return nil, pkgerrors.NewValidationError("ritual definition code cannot be empty")
	}
	if !urgency.IsValid() {
		urgency = valueobjects.UrgencyGentle
	}

	r := &Ritual{
		id:          valueobjects.NewRitualID(),
		companionID: companionID,
		ritualDate:  ritualDate,
		status:      valueobjects.RitualPending,
		urgency:     urgency,
		createdAt:   now.UTC(),
		definition:  def,
	}
	r.addEvent(events.NewRitualCreated(companionID, r.id, def.Code, ritualDate, r.createdAt))
	return r, nil
}

// ReconstructRitual rebuilds a ritual from storage.
func ReconstructRitual(s RitualSnapshot) *Ritual {
	return &Ritual{
		id:          s.ID,
		companionID: s.CompanionID,
		ritualDate:  s.RitualDate,
		status:      s.Status,
		urgency:     s.Urgency,
		completedAt: utcPtr(s.CompletedAt),
		createdAt:   s.CreatedAt.UTC(),
		definition:  s.Definition,
	}
}

func (r *Ritual) ID() valueobjects.RitualID { return r.id }
func (r *Ritual) CompanionID() valueobjects.CompanionID { return r.companionID }
func (r *Ritual) RitualDate() string { return r.ritualDate }
func (r *Ritual) Status() valueobjects.RitualStatus { return r.status }
func (r *Ritual) Urgency() valueobjects.Urgency { return r.urgency }
func (r *Ritual) CompletedAt() *time.Time { return r.completedAt }
func (r *Ritual) Definition() RitualDefinition { return r.definition }

// BondDelta is the bond gained on completion.
func (r *Ritual) BondDelta() float64 {
	if r.definition.BaseBondDelta == 0 {
		return DefaultBondDelta
	}
	return r.definition.BaseBondDelta
}

// CareDelta is the care score gained on completion.
func (r *Ritual) CareDelta() float64 {
	if r.definition.BaseCareDelta == 0 {
		return DefaultCareDelta
	}
	return r.definition.BaseCareDelta
}

// Complete marks the ritual done. A second call fails with AlreadyResolved.
func (r *Ritual) Complete(now time.Time) error {
	if r.status == valueobjects.RitualCompleted {
		return pkgerrors.NewAlreadyResolvedError("ritual", r.id.String(), string(r.status))
	}

	completedAt := now.UTC()
	r.status = valueobjects.RitualCompleted
	r.completedAt = &completedAt
	r.addEvent(events.NewRitualCompleted(r.companionID, r.id, r.definition.Code, r.BondDelta(), r.CareDelta(), completedAt))
	return nil
}

// Snapshot returns the persisted shape of the ritual.
func (r *Ritual) Snapshot() RitualSnapshot {
	return RitualSnapshot{
		ID:          r.id,
		CompanionID: r.companionID,
		RitualDate:  r.ritualDate,
		Status:      r.status,
		Urgency:     r.urgency,
		CompletedAt: r.completedAt,
		CreatedAt:   r.createdAt,
		Definition:  r.definition,
	}
}

func (r *Ritual) GetUncommittedEvents() []events.DomainEvent { return r.events }
func (r *Ritual) MarkEventsAsCommitted() { r.events = nil }

func (r *Ritual) addEvent(event events.DomainEvent) {
	r.events = append(r.events, event)
}
