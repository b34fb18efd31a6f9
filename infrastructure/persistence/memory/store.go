// Package memory holds in-process adapters used by tests, local runs and the
// single-node deployment.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
)

// Store is a CompanionStore kept in memory. Entities are stored as snapshots
// so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	clock     clock.Clock
	snapshots map[valueobjects.CompanionID]entities.LifeSnapshot
	requests  map[valueobjects.RequestID]entities.RequestSnapshot
	order     []valueobjects.RequestID
	rituals   map[valueobjects.RitualID]entities.RitualSnapshot
	ritualSeq []valueobjects.RitualID
}

var _ ports.CompanionStore = (*Store)(nil)

// NewStore creates an empty store
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{
		clock:     clk,
		snapshots: make(map[valueobjects.CompanionID]entities.LifeSnapshot),
		requests:  make(map[valueobjects.RequestID]entities.RequestSnapshot),
		rituals:   make(map[valueobjects.RitualID]entities.RitualSnapshot),
	}
}

func (s *Store) LoadLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entities.LifeSnapshot{}, pkgerrors.NewDatabaseError("LoadLifeSnapshot", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[companionID]
	if !ok {
		return entities.LifeSnapshot{}, pkgerrors.NewNotFoundError("life snapshot", companionID.String())
	}
	return snapshot, nil
}

func (s *Store) LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("LoadOpenRequests", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.Request
	for _, id := range s.order {
		snap := s.requests[id]
		if snap.CompanionID != companionID {
			continue
		}
		r := entities.ReconstructRequest(snap)
		if r.IsOpen() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) LoadRequest(ctx context.Context, companionID valueobjects.CompanionID, requestID valueobjects.RequestID) (*entities.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("LoadRequest", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.requests[requestID]
	if !ok || snap.CompanionID != companionID {
		return nil, pkgerrors.NewNotFoundError("request", requestID.String())
	}
	return entities.ReconstructRequest(snap), nil
}

func (s *Store) LoadRituals(ctx context.Context, companionID valueobjects.CompanionID, date string) ([]*entities.Ritual, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("LoadRituals", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entities.Ritual
	for _, id := range s.ritualSeq {
		snap := s.rituals[id]
		if snap.CompanionID == companionID && snap.RitualDate == date {
			out = append(out, entities.ReconstructRitual(snap))
		}
	}
	return out, nil
}

func (s *Store) LoadRitual(ctx context.Context, companionID valueobjects.CompanionID, ritualID valueobjects.RitualID) (*entities.Ritual, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("LoadRitual", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.rituals[ritualID]
	if !ok || snap.CompanionID != companionID {
		return nil, pkgerrors.NewNotFoundError("ritual", ritualID.String())
	}
	return entities.ReconstructRitual(snap), nil
}

func (s *Store) SaveRequestStatus(ctx context.Context, update ports.RequestStatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDatabaseError("SaveRequestStatus", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.requests[update.RequestID]
	if !ok || snap.CompanionID != update.CompanionID {
		return pkgerrors.NewNotFoundError("request", update.RequestID.String())
	}
	if snap.Status.IsTerminal() {
		return pkgerrors.NewAlreadyResolvedError("request", update.RequestID.String(), string(snap.Status))
	}

	snap.Status = update.Status
	snap.ResolvedAt = copyTime(update.ResolvedAt)
	snap.DueAt = copyTime(update.DueAt)
	if update.ResponseStyle != nil {
		style := *update.ResponseStyle
		snap.ResponseStyle = &style
	}
	s.requests[update.RequestID] = snap
	return nil
}

func (s *Store) CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDatabaseError("CreateRequests", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertRequestsLocked(companionID, requests)
}

func (s *Store) insertRequestsLocked(companionID valueobjects.CompanionID, requests []*entities.Request) error {
	for _, r := range requests {
		if r.CompanionID() != companionID {
			return pkgerrors.NewValidationError("request belongs to another companion")
		}
		if _, exists := s.requests[r.ID()]; exists {
			return pkgerrors.NewConflictError("request " + r.ID().String() + " already exists")
		}
	}
	for _, r := range requests {
		s.requests[r.ID()] = r.Snapshot()
		s.order = append(s.order, r.ID())
	}
	return nil
}

func (s *Store) SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entities.LifeSnapshot{}, pkgerrors.NewDatabaseError("SaveGeneratedRequests", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertRequestsLocked(companionID, requests); err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.applyPatchLocked(companionID, patch), nil
}

func (s *Store) CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDatabaseError("CreateRituals", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertRitualsLocked(companionID, rituals)
}

func (s *Store) insertRitualsLocked(companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	for _, r := range rituals {
		if r.CompanionID() != companionID {
			return pkgerrors.NewValidationError("ritual belongs to another companion")
		}
		if _, exists := s.rituals[r.ID()]; exists {
			return pkgerrors.NewConflictError("ritual " + r.ID().String() + " already exists")
		}
	}
	for _, r := range rituals {
		s.rituals[r.ID()] = r.Snapshot()
		s.ritualSeq = append(s.ritualSeq, r.ID())
	}
	return nil
}

func (s *Store) SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entities.LifeSnapshot{}, pkgerrors.NewDatabaseError("SaveDayTick", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertRitualsLocked(companionID, rituals); err != nil {
		return entities.LifeSnapshot{}, err
	}
	return s.applyPatchLocked(companionID, patch), nil
}

func (s *Store) UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entities.LifeSnapshot{}, pkgerrors.NewDatabaseError("UpdateLifeSnapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyPatchLocked(companionID, patch), nil
}

func (s *Store) applyPatchLocked(companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) entities.LifeSnapshot {
	now := s.clock.Now()
	current, ok := s.snapshots[companionID]
	if !ok {
		current = entities.NewLifeSnapshot(companionID, now)
	}
	updated := current.Apply(patch, now)
	s.snapshots[companionID] = updated
	return updated
}

func (s *Store) LoadResolvedRequestsHistory(ctx context.Context, companionID valueobjects.CompanionID, since time.Time, limit int) ([]*entities.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError("LoadResolvedRequestsHistory", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []entities.RequestSnapshot
	for _, id := range s.order {
		snap := s.requests[id]
		if snap.CompanionID == companionID && !snap.RequestedAt.Before(since) {
			snaps = append(snaps, snap)
		}
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		return snaps[i].RequestedAt.After(snaps[j].RequestedAt)
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}

	out := make([]*entities.Request, len(snaps))
	for i, snap := range snaps {
		out[i] = entities.ReconstructRequest(snap)
	}
	return out, nil
}

func (s *Store) SaveRitualCompletion(ctx context.Context, ritual *entities.Ritual, patch entities.LifeSnapshotPatch) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.NewDatabaseError("SaveRitualCompletion", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rituals[ritual.ID()]
	if !ok || stored.CompanionID != ritual.CompanionID() {
		return pkgerrors.NewNotFoundError("ritual", ritual.ID().String())
	}
	if stored.Status == valueobjects.RitualCompleted {
		return pkgerrors.NewAlreadyResolvedError("ritual", ritual.ID().String(), string(stored.Status))
	}

	s.rituals[ritual.ID()] = ritual.Snapshot()
	s.applyPatchLocked(ritual.CompanionID(), patch)
	return nil
}

// SeedLifeSnapshot stores snapshot as is. Used by tests and the CLI.
func (s *Store) SeedLifeSnapshot(snapshot entities.LifeSnapshot) {
	s.mu.Lock()
	s.snapshots[snapshot.CompanionID] = snapshot
	s.mu.Unlock()
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}
