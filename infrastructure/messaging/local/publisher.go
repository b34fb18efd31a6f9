// Package local provides an in-process event publisher for development and
// the operator CLI, where no event bus is configured.
package local

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"companionlife/application/ports"
	"companionlife/domain/events"
)

// Publisher logs each event and keeps the most recent ones in memory.
type Publisher struct {
	mu       sync.Mutex
	logger   *zap.Logger
	recent   []events.DomainEvent
	capacity int
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher keeps up to capacity events. Zero keeps none.
func NewPublisher(logger *zap.Logger, capacity int) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger, capacity: capacity}
}

func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

func (p *Publisher) PublishBatch(_ context.Context, batch []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, event := range batch {
		p.logger.Info("Domain event",
			zap.String("event_type", event.GetEventType()),
			zap.String("companion_id", event.GetAggregateID()),
			zap.Time("timestamp", event.GetTimestamp()),
		)
		if p.capacity == 0 {
			continue
		}
		p.recent = append(p.recent, event)
		if len(p.recent) > p.capacity {
			p.recent = p.recent[len(p.recent)-p.capacity:]
		}
	}
	return nil
}

// Recent returns a copy of the retained events, oldest first.
func (p *Publisher) Recent() []events.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.DomainEvent, len(p.recent))
	copy(out, p.recent)
	return out
}
