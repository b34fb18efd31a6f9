package queries

import (
	"time"

	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/services"
	"companionlife/pkg/utils"
)

// GetCadenceQuery reads the cadence guardrail and recovery pressure
type GetCadenceQuery struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
}

// Validate validates the query
func (q GetCadenceQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// CadenceView is the cadence panel: guardrail numbers plus the next due headline
type CadenceView struct {
	services.RequestCadence
	NextDueLabel string                    `json:"nextDueLabel"`
	Recovery     services.RecoveryPressure `json:"recovery"`
	EvaluatedAt  time.Time                 `json:"evaluatedAt"`
}

// ListRequestsQuery lists open requests in ranked order
type ListRequestsQuery struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	Filter      string `json:"filter" validate:"omitempty,oneof=all critical important gentle overdue"`
}

// Validate validates the query
func (q ListRequestsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// RankedRequestView is one ranked request with its current window
type RankedRequestView struct {
	entities.RequestSnapshot
	Window valueobjects.Window `json:"window"`
}

// RequestListView is the ranked, filtered list
type RequestListView struct {
	Filter      services.RequestFilter `json:"filter"`
	Requests    []RankedRequestView    `json:"requests"`
	OpenCount   int                    `json:"openCount"`
	EvaluatedAt time.Time              `json:"evaluatedAt"`
}

// GetAnalyticsQuery reads response analytics
type GetAnalyticsQuery struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
}

// Validate validates the query
func (q GetAnalyticsQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// AnalyticsView adds display labels to the analytics numbers
type AnalyticsView struct {
	services.RequestAnalytics
	AverageResponseLabel string `json:"averageResponseLabel"`
}

// GetLifeOverviewQuery reads the snapshot, recovery and the day's rituals
type GetLifeOverviewQuery struct {
	CompanionID string `json:"companionId" validate:"required,max=128"`
	Date        string `json:"date" validate:"omitempty,datekey"`
}

// Validate validates the query
func (q GetLifeOverviewQuery) Validate() error {
	return utils.ValidateStruct(q)
}

// LifeOverview is everything the companion life screen shows at once
type LifeOverview struct {
	Snapshot    entities.LifeSnapshot     `json:"snapshot"`
	Recovery    services.RecoveryPressure `json:"recovery"`
	Cadence     services.RequestCadence   `json:"cadence"`
	RitualDate  string                    `json:"ritualDate"`
	Rituals     []entities.RitualSnapshot `json:"rituals"`
	Pending     int                       `json:"pendingRituals"`
	EvaluatedAt time.Time                 `json:"evaluatedAt"`
}
