package config

import (
	"time"

	"companionlife/domain/core/valueobjects"
)

// DomainConfig holds all tunable cadence, escalation and recovery rules.
// Field tags drive the optional YAML tunables file.
type DomainConfig struct {
	// Cadence guardrail
	MaxOpenRequests    int           `yaml:"max_open_requests"`
	GenerationInterval time.Duration `yaml:"generation_interval"`

	// Escalation pressure
	UrgencyPressureDivisor      float64 `yaml:"urgency_pressure_divisor"`
	OverduePressureSurcharge    float64 `yaml:"overdue_pressure_surcharge"`
	EscalationWatchThreshold    float64 `yaml:"escalation_watch_threshold"`
	EscalationCriticalThreshold float64 `yaml:"escalation_critical_threshold"`
	EscalationDisplayCeiling    float64 `yaml:"escalation_display_ceiling"`

	// Window classifier bounds, in minutes
	CriticalWindowMinutes int `yaml:"critical_window_minutes"`
	ClosingWindowMinutes  int `yaml:"closing_window_minutes"`
	DayWindowMinutes      int `yaml:"day_window_minutes"`

	// Recovery pressure
	RecoveryStabilityWeight float64 `yaml:"recovery_stability_weight"`
	RecoveryFatigueWeight   float64 `yaml:"recovery_fatigue_weight"`
	RecoveryFatigueCap      int     `yaml:"recovery_fatigue_cap"`
	RecoveryOverdueWeight   float64 `yaml:"recovery_overdue_weight"`
	RecoveryCriticalLane    float64 `yaml:"recovery_critical_lane"`
	RecoveryActiveLane      float64 `yaml:"recovery_active_lane"`

	// Lifecycle
	DefaultSnoozeExtension time.Duration `yaml:"default_snooze_extension"`
	MaxSnoozeExtension     time.Duration `yaml:"max_snooze_extension"`
	GentleDueWindow        time.Duration `yaml:"gentle_due_window"`
	ImportantDueWindow     time.Duration `yaml:"important_due_window"`
	CriticalDueWindow      time.Duration `yaml:"critical_due_window"`

	// Ritual completion effects
	RitualConsistencyDelta float64 `yaml:"ritual_consistency_delta"`

	// Escalation monitor
	TickInterval       time.Duration `yaml:"tick_interval"`
	NoticeTTL          time.Duration `yaml:"notice_ttl"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// Persistence collaborator
	PersistenceTimeout time.Duration `yaml:"persistence_timeout"`
	LockTTL            time.Duration `yaml:"lock_ttl"`

	// Analytics
	AnalyticsWindow       time.Duration `yaml:"analytics_window"`
	AnalyticsLookback     time.Duration `yaml:"analytics_lookback"`
	AnalyticsHistoryLimit int           `yaml:"analytics_history_limit"`
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxOpenRequests:    3,
		GenerationInterval: 0,

		UrgencyPressureDivisor:      10,
		OverduePressureSurcharge:    0.3,
		EscalationWatchThreshold:    0.5,
		EscalationCriticalThreshold: 0.85,
		EscalationDisplayCeiling:    1.2,

		CriticalWindowMinutes: 120,
		ClosingWindowMinutes:  360,
		DayWindowMinutes:      1440,

		RecoveryStabilityWeight: 0.55,
		RecoveryFatigueWeight:   7,
		RecoveryFatigueCap:      10,
		RecoveryOverdueWeight:   12,
		RecoveryCriticalLane:    72,
		RecoveryActiveLane:      44,

		DefaultSnoozeExtension: 2 * time.Hour,
		MaxSnoozeExtension:     48 * time.Hour,
		GentleDueWindow:        24 * time.Hour,
		ImportantDueWindow:     8 * time.Hour,
		CriticalDueWindow:      3 * time.Hour,

		RitualConsistencyDelta: 0.01,

		TickInterval:       60 * time.Second,
		NoticeTTL:          12 * time.Second,
		SessionIdleTimeout: 30 * time.Minute,

		PersistenceTimeout: 8 * time.Second,
		LockTTL:            30 * time.Second,

		AnalyticsWindow:       30 * 24 * time.Hour,
		AnalyticsLookback:     90 * 24 * time.Hour,
		AnalyticsHistoryLimit: 250,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Generation is rate limited on top of the open-slot budget
	config.GenerationInterval = 30 * time.Minute
	config.PersistenceTimeout = 5 * time.Second

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.PersistenceTimeout = 10 * time.Second
	config.SessionIdleTimeout = 5 * time.Minute

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// WindowBounds returns the classifier stage boundaries.
func (c *DomainConfig) WindowBounds() valueobjects.WindowBounds {
	return valueobjects.WindowBounds{
		CriticalMinutes: c.CriticalWindowMinutes,
		ClosingMinutes:  c.ClosingWindowMinutes,
		DayMinutes:      c.DayWindowMinutes,
	}
}

// DueWindowFor returns how long a freshly generated request of the tier stays open.
func (c *DomainConfig) DueWindowFor(u valueobjects.Urgency) time.Duration {
	switch u {
	case valueobjects.UrgencyCritical:
		return c.CriticalDueWindow
	case valueobjects.UrgencyImportant:
		return c.ImportantDueWindow
	default:
		return c.GentleDueWindow
	}
}

// Issue describes a tunable that was replaced by its default.
type Issue struct {
	Field string
	Value interface{}
}

// Sanitize replaces unusable tunables with defaults and reports what changed.
// MaxOpenRequests <= 0 is kept: it means permanent cooldown.
func (c *DomainConfig) Sanitize() []Issue {
	d := DefaultDomainConfig()
	var issues []Issue

	fixFloat := func(field string, v *float64, fallback float64) {
		if *v <= 0 {
			issues = append(issues, Issue{Field: field, Value: *v})
			*v = fallback
		}
	}
	fixDuration := func(field string, v *time.Duration, fallback time.Duration) {
		if *v <= 0 {
			issues = append(issues, Issue{Field: field, Value: *v})
			*v = fallback
		}
	}

	fixFloat("urgency_pressure_divisor", &c.UrgencyPressureDivisor, d.UrgencyPressureDivisor)
	fixFloat("escalation_display_ceiling", &c.EscalationDisplayCeiling, d.EscalationDisplayCeiling)
	if c.OverduePressureSurcharge < 0 {
		issues = append(issues, Issue{Field: "overdue_pressure_surcharge", Value: c.OverduePressureSurcharge})
		c.OverduePressureSurcharge = d.OverduePressureSurcharge
	}
	if c.EscalationWatchThreshold <= 0 || c.EscalationCriticalThreshold < c.EscalationWatchThreshold {
		issues = append(issues, Issue{Field: "escalation_thresholds", Value: [2]float64{c.EscalationWatchThreshold, c.EscalationCriticalThreshold}})
		c.EscalationWatchThreshold = d.EscalationWatchThreshold
		c.EscalationCriticalThreshold = d.EscalationCriticalThreshold
	}

	if c.CriticalWindowMinutes <= 0 || c.ClosingWindowMinutes <= c.CriticalWindowMinutes || c.DayWindowMinutes <= c.ClosingWindowMinutes {
		issues = append(issues, Issue{Field: "window_minutes", Value: [3]int{c.CriticalWindowMinutes, c.ClosingWindowMinutes, c.DayWindowMinutes}})
		c.CriticalWindowMinutes = d.CriticalWindowMinutes
		c.ClosingWindowMinutes = d.ClosingWindowMinutes
		c.DayWindowMinutes = d.DayWindowMinutes
	}

	if c.RecoveryStabilityWeight < 0 || c.RecoveryFatigueWeight < 0 || c.RecoveryOverdueWeight < 0 {
		issues = append(issues, Issue{Field: "recovery_weights", Value: [3]float64{c.RecoveryStabilityWeight, c.RecoveryFatigueWeight, c.RecoveryOverdueWeight}})
		c.RecoveryStabilityWeight = d.RecoveryStabilityWeight
		c.RecoveryFatigueWeight = d.RecoveryFatigueWeight
		c.RecoveryOverdueWeight = d.RecoveryOverdueWeight
	}
	if c.RecoveryFatigueCap <= 0 {
		issues = append(issues, Issue{Field: "recovery_fatigue_cap", Value: c.RecoveryFatigueCap})
		c.RecoveryFatigueCap = d.RecoveryFatigueCap
	}
	if c.RecoveryActiveLane <= 0 || c.RecoveryCriticalLane <= c.RecoveryActiveLane {
		issues = append(issues, Issue{Field: "recovery_lanes", Value: [2]float64{c.RecoveryActiveLane, c.RecoveryCriticalLane}})
		c.RecoveryActiveLane = d.RecoveryActiveLane
		c.RecoveryCriticalLane = d.RecoveryCriticalLane
	}

	fixDuration("default_snooze_extension", &c.DefaultSnoozeExtension, d.DefaultSnoozeExtension)
	fixDuration("max_snooze_extension", &c.MaxSnoozeExtension, d.MaxSnoozeExtension)
	if c.DefaultSnoozeExtension > c.MaxSnoozeExtension {
		issues = append(issues, Issue{Field: "default_snooze_extension", Value: c.DefaultSnoozeExtension})
		c.DefaultSnoozeExtension = c.MaxSnoozeExtension
	}
	fixDuration("gentle_due_window", &c.GentleDueWindow, d.GentleDueWindow)
	fixDuration("important_due_window", &c.ImportantDueWindow, d.ImportantDueWindow)
	fixDuration("critical_due_window", &c.CriticalDueWindow, d.CriticalDueWindow)
	fixDuration("tick_interval", &c.TickInterval, d.TickInterval)
	fixDuration("notice_ttl", &c.NoticeTTL, d.NoticeTTL)
	fixDuration("session_idle_timeout", &c.SessionIdleTimeout, d.SessionIdleTimeout)
	fixDuration("persistence_timeout", &c.PersistenceTimeout, d.PersistenceTimeout)
	fixDuration("lock_ttl", &c.LockTTL, d.LockTTL)
	fixDuration("analytics_window", &c.AnalyticsWindow, d.AnalyticsWindow)
	fixDuration("analytics_lookback", &c.AnalyticsLookback, d.AnalyticsLookback)

	if c.GenerationInterval < 0 {
		issues = append(issues, Issue{Field: "generation_interval", Value: c.GenerationInterval})
		c.GenerationInterval = 0
	}
	if c.AnalyticsHistoryLimit <= 0 {
		issues = append(issues, Issue{Field: "analytics_history_limit", Value: c.AnalyticsHistoryLimit})
		c.AnalyticsHistoryLimit = d.AnalyticsHistoryLimit
	}
	if c.RitualConsistencyDelta < 0 {
		issues = append(issues, Issue{Field: "ritual_consistency_delta", Value: c.RitualConsistencyDelta})
		c.RitualConsistencyDelta = d.RitualConsistencyDelta
	}

	return issues
}
