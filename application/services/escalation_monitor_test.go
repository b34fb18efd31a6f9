package services

import (
	"context"
	"testing"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	"companionlife/infrastructure/persistence/memory"
	"companionlife/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const companion = valueobjects.CompanionID("companion-1")

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	return m.Called(ctx, evts).Error(0)
}

type monitorFixture struct {
	monitor   *EscalationMonitor
	store     *memory.Store
	clock     *clock.Fake
	publisher *MockEventPublisher
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)
	publisher := new(MockEventPublisher)
	publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil).Maybe()
	monitor := NewEscalationMonitor(store, publisher, clk, config.DefaultDomainConfig(), nil, zap.NewNop())
	return &monitorFixture{monitor: monitor, store: store, clock: clk, publisher: publisher}
}

func (f *monitorFixture) seed(t *testing.T, title string, dueIn time.Duration) *entities.Request {
	t.Helper()
	due := f.clock.Now().Add(dueIn)
	request, err := entities.NewRequest(companion, entities.RequestDraft{
		RequestType: "check_in",
		Title:       title,
		Prompt:      "prompt",
		Urgency:     valueobjects.UrgencyImportant,
		DueAt:       &due,
	}, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRequests(context.Background(), companion, []*entities.Request{request}))
	return request
}

func TestEscalationMonitor_FiresOnceOnCriticalEntry(t *testing.T) {
	// Arrange
	f := newMonitorFixture(t)
	ctx := context.Background()
	request := f.seed(t, "Ritual Support Needed", 121*time.Minute)
	notice, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	require.Nil(t, notice)

	// Act
	f.clock.Advance(time.Minute)
	f.monitor.Tick(ctx)
	first, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	f.monitor.Tick(ctx)

	// Assert
	require.NotNil(t, first)
	assert.Equal(t, "Ritual Support Needed entered a critical response window.", first.Message)
	assert.Equal(t, []valueobjects.RequestID{request.ID()}, first.RequestIDs())
	assert.Equal(t, "tab-1", first.SessionID)

	escalated := 0
	for _, call := range f.publisher.Calls {
		for _, e := range call.Arguments.Get(1).([]events.DomainEvent) {
			if e.GetEventType() == events.TypeRequestEscalated {
				escalated++
				assert.Equal(t, "tab-1", e.(events.RequestEscalated).SessionID)
			}
		}
	}
	assert.Equal(t, 1, escalated)
}

func TestEscalationMonitor_AlreadyCriticalOnArrivalNeverFires(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	f.seed(t, "Bond Alert", 30*time.Minute)

	_, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	f.monitor.Tick(ctx)

	notice, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	assert.Nil(t, notice)
	f.publisher.AssertNotCalled(t, "PublishBatch", mock.Anything, mock.Anything)
}

func TestEscalationMonitor_SessionsAreIndependent(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	f.seed(t, "Focus Anchor", 121*time.Minute)

	_, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.monitor.Watch(ctx, companion, "tab-2")
	require.NoError(t, err)
	f.monitor.Tick(ctx)

	one, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	two, err := f.monitor.Watch(ctx, companion, "tab-2")
	require.NoError(t, err)

	assert.NotNil(t, one, "tab-1 saw the closing stage before the crossing")
	assert.Nil(t, two, "tab-2 arrived after the crossing")
}

func TestEscalationMonitor_NoticeExpiresAndDismisses(t *testing.T) {
	tests := []struct {
		name    string
		dismiss bool
		advance time.Duration
		visible bool
	}{
		{"visible before ttl", false, 11 * time.Second, true},
		{"expired at ttl", false, 12 * time.Second, false},
		{"dismissed", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMonitorFixture(t)
			ctx := context.Background()
			f.seed(t, "Repair Invitation", 121*time.Minute)
			_, err := f.monitor.Watch(ctx, companion, "tab-1")
			require.NoError(t, err)
			f.clock.Advance(time.Minute)
			f.monitor.Tick(ctx)

			if tt.dismiss {
				assert.True(t, f.monitor.Dismiss(companion, "tab-1"))
			}
			f.clock.Advance(tt.advance)

			notice, err := f.monitor.Watch(ctx, companion, "tab-1")
			require.NoError(t, err)
			assert.Equal(t, tt.visible, notice != nil)
		})
	}
}

func TestEscalationMonitor_EvictsIdleSessions(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	_, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	_, err = f.monitor.Watch(ctx, companion, "tab-2")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	_, err = f.monitor.Watch(ctx, companion, "tab-2")
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)
	f.monitor.Tick(ctx)

	assert.Equal(t, 1, f.monitor.SessionCount())
	assert.False(t, f.monitor.Dismiss(companion, "tab-1"))
}

func TestEscalationMonitor_ResolvedRequestsAreForgotten(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()
	request := f.seed(t, "Presence Ping", 121*time.Minute)
	_, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)

	require.NoError(t, request.Complete(f.clock.Now()))
	require.NoError(t, f.store.SaveRequestStatus(ctx, ports.StatusUpdateFrom(request)))
	f.clock.Advance(time.Minute)
	f.monitor.Tick(ctx)

	notice, err := f.monitor.Watch(ctx, companion, "tab-1")
	require.NoError(t, err)
	assert.Nil(t, notice)
}

func TestEscalationMonitor_StartStop(t *testing.T) {
	f := newMonitorFixture(t)
	f.monitor.config.TickInterval = 5 * time.Millisecond

	f.monitor.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	f.monitor.Stop()
	f.monitor.Stop()
}
