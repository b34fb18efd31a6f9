package commands

import (
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/utils"
)

// RequestAction is a user response to a request.
type RequestAction string

const (
	ActionAccept   RequestAction = "accept"
	ActionComplete RequestAction = "complete"
	ActionDecline  RequestAction = "decline"
	ActionSnooze   RequestAction = "snooze"
)

// ResolveRequestCommand applies a lifecycle action to one request
type ResolveRequestCommand struct {
	CompanionID   string        `json:"companionId" validate:"required,max=128"`
	RequestID     string        `json:"requestId" validate:"required,uuid"`
	Action        RequestAction `json:"action" validate:"required,oneof=accept complete decline snooze"`
	SnoozeMinutes int           `json:"snoozeMinutes" validate:"min=0"`
}

// Validate validates the command
func (c ResolveRequestCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// ResolveRequestResult is the request after the action was applied
type ResolveRequestResult struct {
	Request   entities.RequestSnapshot `json:"request"`
	Action    RequestAction            `json:"action"`
	SlotFreed bool                     `json:"slotFreed"`
}

// CompleteRitualCommand completes one scheduled ritual
type CompleteRitualCommand struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	RitualID    string `json:"dailyRitualId" validate:"required,uuid"`
}

// Validate validates the command
func (c CompleteRitualCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// CompleteRitualResult reports the ritual and, when newly completed, the updated snapshot
type CompleteRitualResult struct {
	Success          bool                    `json:"success"`
	AlreadyCompleted bool                    `json:"alreadyCompleted"`
	Ritual           entities.RitualSnapshot `json:"ritual"`
	Snapshot         *entities.LifeSnapshot  `json:"snapshot,omitempty"`
}

// ProcessDayTickCommand advances the companion's day. Date defaults to today (UTC).
type ProcessDayTickCommand struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	Date        string `json:"date" validate:"omitempty,datekey"`
}

// Validate validates the command
func (c ProcessDayTickCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// DayTickResult summarizes a processed day tick
type DayTickResult struct {
	RitualDate            string                    `json:"ritualDate"`
	RitualCount           int                       `json:"ritualCount"`
	RitualsCreated        int                       `json:"ritualsCreated"`
	CurrentEmotionalArc   valueobjects.EmotionalArc `json:"currentEmotionalArc"`
	RoutineStabilityScore float64                   `json:"routineStabilityScore"`
	RequestFatigue        int                       `json:"requestFatigue"`
}

// GenerateRequestsCommand asks the companion to raise new requests.
// MaxRequests optionally lowers the open-request budget for this call.
type GenerateRequestsCommand struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	MaxRequests int    `json:"maxRequests" validate:"min=0,max=20"`
}

// Validate validates the command
func (c GenerateRequestsCommand) Validate() error {
	return utils.ValidateStruct(c)
}

// GenerateRequestsResult summarizes a generation run
type GenerateRequestsResult struct {
	Generated      int                        `json:"generated"`
	OpenCount      int                        `json:"openCount"`
	MaxRequests    int                        `json:"maxRequests"`
	CooldownActive bool                       `json:"cooldownActive"`
	Requests       []entities.RequestSnapshot `json:"requests"`
}
