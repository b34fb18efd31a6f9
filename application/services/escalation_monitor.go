package services

import (
	"context"
	"sync"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/config"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/domain/events"
	domainservices "companionlife/domain/services"
	"companionlife/pkg/clock"
	"companionlife/pkg/observability"

	"go.uber.org/zap"
)

// ActiveNotice is an escalation notice that is still visible to its session.
type ActiveNotice struct {
	domainservices.EscalationNotice
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionKey struct {
	companionID valueobjects.CompanionID
	sessionID   string
}

type viewerSession struct {
	detector *domainservices.EscalationDetector
	notice   *ActiveNotice
	lastSeen time.Time
}

// EscalationMonitor re-evaluates every registered viewer session on a fixed
// tick. Each session owns its detector so two viewers of the same companion
// are notified independently.
type EscalationMonitor struct {
	store     ports.CompanionStore
	publisher ports.EventPublisher
	clock     clock.Clock
	config    *config.DomainConfig
	metrics   *observability.Metrics
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*viewerSession

	stopChan    chan struct{}
	stoppedChan chan struct{}
	stopOnce    sync.Once
}

// NewEscalationMonitor creates a new monitor
func NewEscalationMonitor(
	store ports.CompanionStore,
	publisher ports.EventPublisher,
	clk clock.Clock,
	cfg *config.DomainConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *EscalationMonitor {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationMonitor{
		store:       store,
		publisher:   publisher,
		clock:       clk,
		config:      cfg,
		metrics:     metrics,
		logger:      logger,
		sessions:    make(map[sessionKey]*viewerSession),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start begins the background re-evaluation loop
func (m *EscalationMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting escalation monitor",
		zap.Duration("interval", m.config.TickInterval),
		zap.Duration("noticeTTL", m.config.NoticeTTL),
	)

	go m.processLoop(ctx)
}

// Stop gracefully stops the loop and waits for it to exit
func (m *EscalationMonitor) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping escalation monitor")
		close(m.stopChan)
		<-m.stoppedChan
		m.logger.Info("Escalation monitor stopped")
	})
}

func (m *EscalationMonitor) processLoop(ctx context.Context) {
	defer close(m.stoppedChan)

	ticker := time.NewTicker(m.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Context cancelled, stopping escalation monitor")
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Watch registers or refreshes a viewer session and returns its visible
// notice, if any. A new session records its baseline stages immediately so
// requests already critical when the viewer arrives never fire.
func (m *EscalationMonitor) Watch(ctx context.Context, companionID valueobjects.CompanionID, sessionID string) (*ActiveNotice, error) {
	key := sessionKey{companionID: companionID, sessionID: sessionID}
	now := m.clock.Now()

	m.mu.Lock()
	session, exists := m.sessions[key]
	if exists {
		session.lastSeen = now
		notice := visibleNotice(session, now)
		m.mu.Unlock()
		return notice, nil
	}
	m.mu.Unlock()

	open, err := m.loadOpen(ctx, companionID)
	if err != nil {
		return nil, err
	}

	detector := domainservices.NewEscalationDetector(m.config.WindowBounds())
	detector.Observe(open, now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		existing.lastSeen = now
		return visibleNotice(existing, now), nil
	}
	m.sessions[key] = &viewerSession{detector: detector, lastSeen: now}
	m.logger.Debug("Viewer session registered",
		zap.String("companion_id", companionID.String()),
		zap.String("session_id", sessionID),
	)
	return nil, nil
}

// Dismiss clears the session's notice. It reports whether one was visible.
func (m *EscalationMonitor) Dismiss(companionID valueobjects.CompanionID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionKey{companionID: companionID, sessionID: sessionID}]
	if !ok {
		return false
	}
	visible := visibleNotice(session, m.clock.Now()) != nil
	session.notice = nil
	return visible
}

// Unregister drops a session and its stage history.
func (m *EscalationMonitor) Unregister(companionID valueobjects.CompanionID, sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionKey{companionID: companionID, sessionID: sessionID})
	m.mu.Unlock()
}

// SessionCount returns the number of registered sessions.
func (m *EscalationMonitor) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Tick runs one evaluation over every session: idle sessions are evicted,
// expired notices cleared, and each detector observes the companion's open
// requests. Open requests are loaded once per companion.
func (m *EscalationMonitor) Tick(ctx context.Context) {
	now := m.clock.Now()
	byCompanion := m.activeSessions(now)

	for companionID, keys := range byCompanion {
		open, err := m.loadOpen(ctx, companionID)
		if err != nil {
			m.logger.Warn("Skipping escalation check",
				zap.String("companion_id", companionID.String()),
				zap.Error(err),
			)
			continue
		}

		for _, key := range keys {
			m.observe(ctx, key, open, now)
		}
	}
}

// activeSessions evicts idle sessions and expired notices and groups the rest by companion.
func (m *EscalationMonitor) activeSessions(now time.Time) map[valueobjects.CompanionID][]sessionKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[valueobjects.CompanionID][]sessionKey)
	for key, session := range m.sessions {
		if m.config.SessionIdleTimeout > 0 && now.Sub(session.lastSeen) > m.config.SessionIdleTimeout {
			delete(m.sessions, key)
			m.logger.Debug("Evicted idle viewer session",
				zap.String("companion_id", key.companionID.String()),
				zap.String("session_id", key.sessionID),
			)
			continue
		}
		if session.notice != nil && !now.Before(session.notice.ExpiresAt) {
			session.notice = nil
		}
		out[key.companionID] = append(out[key.companionID], key)
	}
	return out
}

func (m *EscalationMonitor) observe(ctx context.Context, key sessionKey, open []*entities.Request, now time.Time) {
	m.mu.Lock()
	session, ok := m.sessions[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	notice := session.detector.Observe(open, now)
	if notice != nil {
		session.notice = &ActiveNotice{
			EscalationNotice: *notice,
			SessionID:        key.sessionID,
			ExpiresAt:        now.Add(m.config.NoticeTTL),
		}
	}
	m.mu.Unlock()

	if notice == nil {
		return
	}

	m.logger.Info("Requests entered a critical response window",
		zap.String("companion_id", key.companionID.String()),
		zap.String("session_id", key.sessionID),
		zap.Int("transitions", len(notice.Transitions)),
	)
	m.metrics.RecordCount(ctx, observability.MetricEscalations, "EscalationMonitor", float64(len(notice.Transitions)))

	if m.publisher == nil {
		return
	}
	batch := make([]events.DomainEvent, 0, len(notice.Transitions))
	for _, t := range notice.Transitions {
		batch = append(batch, events.NewRequestEscalated(key.companionID, t.RequestID, t.Title, t.To, key.sessionID, now))
	}
	if err := m.publisher.PublishBatch(ctx, batch); err != nil {
		m.logger.Error("Failed to publish escalation events",
			zap.String("companion_id", key.companionID.String()),
			zap.Error(err),
		)
	}
}

func (m *EscalationMonitor) loadOpen(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.PersistenceTimeout)
	defer cancel()
	return m.store.LoadOpenRequests(ctx, companionID)
}

func visibleNotice(session *viewerSession, now time.Time) *ActiveNotice {
	if session.notice == nil || !now.Before(session.notice.ExpiresAt) {
		return nil
	}
	n := *session.notice
	return &n
}
