package services

import (
	"math"
	"time"

	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
)

// EscalationLevel is the discrete band of escalation pressure.
type EscalationLevel string

const (
	EscalationStable   EscalationLevel = "stable"
	EscalationWatch    EscalationLevel = "watch"
	EscalationCritical EscalationLevel = "critical"
)

// UrgencyCounts tallies open requests per tier.
type UrgencyCounts struct {
	Gentle    int `json:"gentle"`
	Important int `json:"important"`
	Critical  int `json:"critical"`
}

func (u *UrgencyCounts) add(tier valueobjects.Urgency) {
	switch tier {
	case valueobjects.UrgencyCritical:
		u.Critical++
	case valueobjects.UrgencyImportant:
		u.Important++
	case valueobjects.UrgencyGentle:
		u.Gentle++
	}
}

// RequestCadence is the derived guardrail view over the open requests.
type RequestCadence struct {
	MaxOpenRequests        int             `json:"maxOpenRequests"`
	OpenRequests           int             `json:"openRequests"`
	SlotsAvailable         int             `json:"slotsAvailable"`
	CooldownActive         bool            `json:"cooldownActive"`
	NextDueAt              *time.Time      `json:"nextDueAt"`
	OverdueCount           int             `json:"overdueCount"`
	UrgencyCounts          UrgencyCounts   `json:"urgencyCounts"`
	EscalationPressure     float64         `json:"escalationPressure"`
	EscalationPercent      int             `json:"escalationPercent"`
	EscalationLevel        EscalationLevel `json:"escalationLevel"`
	RecommendedNewRequests int             `json:"recommendedNewRequests"`
}

// CadenceCalculator derives RequestCadence from open requests.
type CadenceCalculator struct {
	maxOpen        int
	divisor        float64
	surcharge      float64
	watchAt        float64
	criticalAt     float64
	displayCeiling float64
	bounds         valueobjects.WindowBounds
}

// NewCadenceCalculator creates a calculator from the domain tunables
func NewCadenceCalculator(cfg *config.DomainConfig) *CadenceCalculator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &CadenceCalculator{
		maxOpen:        cfg.MaxOpenRequests,
		divisor:        cfg.UrgencyPressureDivisor,
		surcharge:      cfg.OverduePressureSurcharge,
		watchAt:        cfg.EscalationWatchThreshold,
		criticalAt:     cfg.EscalationCriticalThreshold,
		displayCeiling: cfg.EscalationDisplayCeiling,
		bounds:         cfg.WindowBounds(),
	}
}

// MaxOpenRequests returns the configured open-slot budget.
func (c *CadenceCalculator) MaxOpenRequests() int {
	return c.maxOpen
}

// Calculate derives the cadence at now. Requests that are not open are ignored,
// so callers may pass an unfiltered set.
func (c *CadenceCalculator) Calculate(requests []*entities.Request, now time.Time) RequestCadence {
	return c.CalculateWithBudget(requests, now, c.maxOpen)
}

// CalculateWithBudget is Calculate with an explicit open-request budget.
func (c *CadenceCalculator) CalculateWithBudget(requests []*entities.Request, now time.Time, maxOpen int) RequestCadence {
	cadence := RequestCadence{MaxOpenRequests: maxOpen}

	pressure := 0.0
	for _, r := range requests {
		if r == nil || !r.IsOpen() {
			continue
		}
		cadence.OpenRequests++
		cadence.UrgencyCounts.add(r.Urgency())

		window := r.Window(now, c.bounds)
		contribution := float64(r.Urgency().Weight()) / c.divisor
		if window.Overdue {
			cadence.OverdueCount++
			contribution += c.surcharge
		}
		pressure += contribution

		if due := r.DueAt(); due != nil && (cadence.NextDueAt == nil || due.Before(*cadence.NextDueAt)) {
			d := *due
			cadence.NextDueAt = &d
		}
	}

	// A non-positive budget is a permanent cooldown.
	if maxOpen > 0 {
		cadence.SlotsAvailable = max(0, maxOpen-cadence.OpenRequests)
	}
	cadence.CooldownActive = cadence.SlotsAvailable == 0
	if !cadence.CooldownActive {
		cadence.RecommendedNewRequests = cadence.SlotsAvailable
	}

	cadence.EscalationPressure = round2(math.Max(0, pressure))
	cadence.EscalationLevel = c.LevelFor(cadence.EscalationPressure)
	cadence.EscalationPercent = int(math.Min(100, math.Round(cadence.EscalationPressure/c.displayCeiling*100)))
	return cadence
}

// LevelFor maps a pressure value to its escalation band.
func (c *CadenceCalculator) LevelFor(pressure float64) EscalationLevel {
	switch {
	case pressure < c.watchAt:
		return EscalationStable
	case pressure < c.criticalAt:
		return EscalationWatch
	default:
		return EscalationCritical
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
