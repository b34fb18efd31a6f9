package memory

import (
	"context"
	"sync"

	"companionlife/application/ports"
	"companionlife/domain/core/valueobjects"
)

// Locker is a per-companion mutex for single-process deployments.
// Waiting honors ctx so a stuck writer cannot block callers past their timeout.
type Locker struct {
	mu    sync.Mutex
	slots map[valueobjects.CompanionID]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

var _ ports.CompanionLocker = (*Locker)(nil)

// NewLocker creates a new keyed locker
func NewLocker() *Locker {
	return &Locker{slots: make(map[valueobjects.CompanionID]*slot)}
}

// Lock implements ports.CompanionLocker
func (l *Locker) Lock(ctx context.Context, companionID valueobjects.CompanionID) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[companionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[companionID] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.forget(companionID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.forget(companionID, s)
		})
	}, nil
}

// forget drops the slot once nobody holds or waits for it.
func (l *Locker) forget(companionID valueobjects.CompanionID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, companionID)
	}
}
