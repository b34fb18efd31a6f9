package handlers

import (
	"context"
	"testing"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	"companionlife/infrastructure/content"
	"companionlife/infrastructure/persistence/memory"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const companion = valueobjects.CompanionID("companion-1")

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// MockEventPublisher records published events
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

// publishedTypes returns the event types of every PublishBatch call in order.
func (m *MockEventPublisher) publishedTypes() []string {
	var out []string
	for _, call := range m.Calls {
		if call.Method != "PublishBatch" {
			continue
		}
		for _, e := range call.Arguments.Get(1).([]events.DomainEvent) {
			out = append(out, e.GetEventType())
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	locker    *memory.Locker
	publisher *MockEventPublisher
	clock     *clock.Fake
	config    *config.DomainConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(testNow)
	publisher := new(MockEventPublisher)
	publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil).Maybe()
	return &fixture{
		store:     memory.NewStore(clk),
		locker:    memory.NewLocker(),
		publisher: publisher,
		clock:     clk,
		config:    config.DefaultDomainConfig(),
	}
}

func (f *fixture) lifecycle() *RequestLifecycleHandler {
	return NewRequestLifecycleHandler(f.store, f.locker, f.publisher, f.clock, f.config, nil, zap.NewNop())
}

func (f *fixture) orchestrator() *DayCycleOrchestrator {
	return f.orchestratorWith(f.store)
}

func (f *fixture) orchestratorWith(store ports.CompanionStore) *DayCycleOrchestrator {
	return NewDayCycleOrchestrator(
		store,
		f.locker,
		f.publisher,
		content.NewTemplateSource(nil),
		content.NewStaticRitualCatalog(nil),
		nil,
		f.clock,
		f.config,
		nil,
		nil,
		zap.NewNop(),
	)
}

// seedRequest stores an open request due in dueIn and returns it.
func (f *fixture) seedRequest(t *testing.T, urgency valueobjects.Urgency, dueIn time.Duration) *entities.Request {
	t.Helper()
	due := f.clock.Now().Add(dueIn)
	request, err := entities.NewRequest(companion, entities.RequestDraft{
		RequestType: "check_in",
		Title:       "A Small Check-In",
		Prompt:      "Two quiet minutes?",
		Urgency:     urgency,
		DueAt:       &due,
	}, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRequests(context.Background(), companion, []*entities.Request{request}))
	return request
}

// seedRitual schedules a ritual for today and returns it.
func (f *fixture) seedRitual(t *testing.T, def entities.RitualDefinition) *entities.Ritual {
	t.Helper()
	ritual, err := entities.NewRitual(companion, entities.DateKey(f.clock.Now()), def, valueobjects.UrgencyGentle, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.store.CreateRituals(context.Background(), companion, []*entities.Ritual{ritual}))
	return ritual
}

// failingStore times out the named write operations and forwards everything
// else to the wrapped store.
type failingStore struct {
	ports.CompanionStore
	failOn string
}

func (s *failingStore) fail(operation string) error {
	if operation == s.failOn {
		return pkgerrors.NewTimeoutError(operation)
	}
	return nil
}

func (s *failingStore) CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	if err := s.fail("CreateRequests"); err != nil {
		return err
	}
	return s.CompanionStore.CreateRequests(ctx, companionID, requests)
}

func (s *failingStore) CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	if err := s.fail("CreateRituals"); err != nil {
		return err
	}
	return s.CompanionStore.CreateRituals(ctx, companionID, rituals)
}

func (s *failingStore) UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := s.fail("UpdateLifeSnapshot"); err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.CompanionStore.UpdateLifeSnapshot(ctx, companionID, patch)
}

func (s *failingStore) SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := s.fail("SaveDayTick"); err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.CompanionStore.SaveDayTick(ctx, companionID, rituals, patch)
}

func (s *failingStore) SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := s.fail("SaveGeneratedRequests"); err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.CompanionStore.SaveGeneratedRequests(ctx, companionID, requests, patch)
}
