package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"companionlife/application/commands"
	"companionlife/application/commands/bus"
	pkgerrors "companionlife/pkg/errors"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu       sync.Mutex
	failTick map[string]bool
	cooldown map[string]bool
	ticked   []string
}

func (f *fakeSender) Send(_ context.Context, cmd bus.Command) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch c := cmd.(type) {
	case commands.ProcessDayTickCommand:
		if f.failTick[c.CompanionID] {
			return nil, errors.New("store unavailable")
		}
		f.ticked = append(f.ticked, c.CompanionID)
		return &commands.DayTickResult{RitualDate: c.Date}, nil
	case commands.GenerateRequestsCommand:
		if f.cooldown[c.CompanionID] {
			return nil, pkgerrors.NewCooldownViolationError("cooldown", 120)
		}
		return &commands.GenerateRequestsResult{Generated: 2}, nil
	}
	return nil, errors.New("unexpected command")
}

func event(t *testing.T, detail TickDetail) awsevents.CloudWatchEvent {
	t.Helper()
	raw, err := json.Marshal(detail)
	require.NoError(t, err)
	return awsevents.CloudWatchEvent{ID: "evt-1", Detail: raw}
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name    string
		sender  *fakeSender
		detail  TickDetail
		want    TickSummary
		wantErr bool
	}{
		{
			name:   "tick only",
			sender: &fakeSender{},
			detail: TickDetail{CompanionIDs: []string{"a", "b"}, Date: "2026-03-14"},
			want:   TickSummary{Processed: 2},
		},
		{
			name:   "tick and generate with one cooldown",
			sender: &fakeSender{cooldown: map[string]bool{"b": true}},
			detail: TickDetail{CompanionIDs: []string{"a", "b"}, Generate: true},
			want:   TickSummary{Processed: 2, Generated: 2, Refused: 1},
		},
		{
			name:   "partial failure",
			sender: &fakeSender{failTick: map[string]bool{"a": true}},
			detail: TickDetail{CompanionIDs: []string{"a", "b"}},
			want:   TickSummary{Processed: 1, Failed: 1},
		},
		{
			name:    "all failed",
			sender:  &fakeSender{failTick: map[string]bool{"a": true}},
			detail:  TickDetail{CompanionIDs: []string{"a"}},
			want:    TickSummary{Failed: 1},
			wantErr: true,
		},
		{
			name:   "no companions",
			sender: &fakeSender{},
			detail: TickDetail{},
			want:   TickSummary{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := &tickHandler{commandBus: tt.sender, logger: zap.NewNop()}

			// Act
			summary, err := h.Handle(context.Background(), event(t, tt.detail))

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.NotNil(t, summary)
			assert.Equal(t, tt.want, *summary)
		})
	}
}

func TestHandle_BadDetail(t *testing.T) {
	h := &tickHandler{commandBus: &fakeSender{}, logger: zap.NewNop()}

	_, err := h.Handle(context.Background(), awsevents.CloudWatchEvent{Detail: json.RawMessage(`{"companionIds":"a"}`)})

	assert.Error(t, err)
}
