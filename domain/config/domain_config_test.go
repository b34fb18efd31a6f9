package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func issueFields(issues []Issue) []string {
	fields := make([]string, len(issues))
	for i, issue := range issues {
		fields[i] = issue.Field
	}
	return fields
}

func TestSanitize_DefaultsAreClean(t *testing.T) {
	for _, env := range []string{"production", "development", "test"} {
		assert.Empty(t, LoadDomainConfig(env).Sanitize(), env)
	}
}

func TestSanitize_SnoozeExtensions(t *testing.T) {
	tests := []struct {
		name        string
		defaultExt  time.Duration
		maxExt      time.Duration
		wantDefault time.Duration
		wantMax     time.Duration
		wantFields  []string
	}{
		{
			name:        "default above maximum is clamped",
			defaultExt:  72 * time.Hour,
			maxExt:      24 * time.Hour,
			wantDefault: 24 * time.Hour,
			wantMax:     24 * time.Hour,
			wantFields:  []string{"default_snooze_extension"},
		},
		{
			name:        "default equal to maximum is kept",
			defaultExt:  6 * time.Hour,
			maxExt:      6 * time.Hour,
			wantDefault: 6 * time.Hour,
			wantMax:     6 * time.Hour,
		},
		{
			name:        "missing maximum falls back before the clamp",
			defaultExt:  72 * time.Hour,
			maxExt:      0,
			wantDefault: 48 * time.Hour,
			wantMax:     48 * time.Hour,
			wantFields:  []string{"max_snooze_extension", "default_snooze_extension"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := DefaultDomainConfig()
			cfg.DefaultSnoozeExtension = tt.defaultExt
			cfg.MaxSnoozeExtension = tt.maxExt

			// Act
			issues := cfg.Sanitize()

			// Assert
			assert.Equal(t, tt.wantDefault, cfg.DefaultSnoozeExtension)
			assert.Equal(t, tt.wantMax, cfg.MaxSnoozeExtension)
			if tt.wantFields == nil {
				assert.Empty(t, issues)
				return
			}
			assert.Equal(t, tt.wantFields, issueFields(issues))
		})
	}
}

func TestSanitize_ReplacesUnusableValues(t *testing.T) {
	// Arrange
	cfg := DefaultDomainConfig()
	cfg.TickInterval = -time.Second
	cfg.GenerationInterval = -time.Minute
	cfg.MaxOpenRequests = 0

	// Act
	issues := cfg.Sanitize()

	// Assert
	assert.ElementsMatch(t, []string{"tick_interval", "generation_interval"}, issueFields(issues))
	assert.Equal(t, DefaultDomainConfig().TickInterval, cfg.TickInterval)
	assert.Equal(t, time.Duration(0), cfg.GenerationInterval)
	assert.Equal(t, 0, cfg.MaxOpenRequests, "zero budget means permanent cooldown")
}
