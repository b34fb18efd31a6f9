// Package sqlite implements the companion store on an embedded SQLite
// database for single-node deployments and the operator CLI.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"companionlife/application/ports"
	"companionlife/domain/core/entities"
	"companionlife/domain/core/valueobjects"
	"companionlife/infrastructure/persistence/schema"
	"companionlife/pkg/clock"
	pkgerrors "companionlife/pkg/errors"
	"companionlife/pkg/utils"

	_ "modernc.org/sqlite"
)

// sortableLayout keeps a fixed fraction width so stored timestamps compare as text.
const sortableLayout = "2006-01-02T15:04:05.000000000Z"

const initialSchema = `
CREATE TABLE IF NOT EXISTS life_snapshots (
	companion_id               TEXT PRIMARY KEY,
	emotional_arc              TEXT    NOT NULL,
	routine_stability          REAL    NOT NULL,
	request_fatigue            INTEGER NOT NULL,
	care_score                 REAL    NOT NULL,
	care_consistency           REAL    NOT NULL,
	bond_level                 REAL    NOT NULL,
	is_dormant                 INTEGER NOT NULL DEFAULT 0,
	last_day_tick_date         TEXT,
	last_requests_generated_at TEXT,
	updated_at                 TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS requests (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT    NOT NULL UNIQUE,
	companion_id     TEXT    NOT NULL,
	request_type     TEXT    NOT NULL,
	title            TEXT    NOT NULL,
	prompt           TEXT    NOT NULL,
	urgency          TEXT    NOT NULL,
	status           TEXT    NOT NULL,
	due_at           TEXT,
	requested_at     TEXT    NOT NULL,
	resolved_at      TEXT,
	response_style   TEXT,
	consequence_hint TEXT,
	request_context  TEXT    NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_requests_companion_status ON requests (companion_id, status);
CREATE INDEX IF NOT EXISTS idx_requests_companion_requested ON requests (companion_id, requested_at);

CREATE TABLE IF NOT EXISTS rituals (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	companion_id TEXT NOT NULL,
	ritual_date  TEXT NOT NULL,
	status       TEXT NOT NULL,
	urgency      TEXT NOT NULL,
	completed_at TEXT,
	created_at   TEXT NOT NULL,
	definition   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rituals_companion_date ON rituals (companion_id, ritual_date);
`

// migrations builds the store's schema history. Append new steps; never edit applied ones.
func migrations() *schema.Evolution {
	e := schema.NewEvolution()
	steps := []schema.Migration{
		{FromVersion: 0, ToVersion: 1, Description: "snapshots, requests and rituals", Up: schema.Statements(initialSchema)},
		{FromVersion: 1, ToVersion: 2, Description: "index requests by due time", Up: schema.Statements(
			`CREATE INDEX IF NOT EXISTS idx_requests_companion_due ON requests (companion_id, due_at)`,
		)},
	}
	for _, step := range steps {
		if err := e.RegisterMigration(step); err != nil {
			panic(err)
		}
	}
	return e
}

const requestColumns = `id, companion_id, request_type, title, prompt, urgency, status, due_at,
	requested_at, resolved_at, response_style, consequence_hint, request_context`

const ritualColumns = `id, companion_id, ritual_date, status, urgency, completed_at, created_at, definition`

// Store is a CompanionStore backed by SQLite.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

var _ ports.CompanionStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string, clk clock.Clock) (*Store, error) {
	if clk == nil {
		clk = clock.NewSystem()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}
	if _, err := migrations().Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return &Store{db: db, clock: clk}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	snapshot, err := loadSnapshot(ctx, s.db, companionID)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.LifeSnapshot{}, pkgerrors.NewNotFoundError("life snapshot", companionID.String())
	}
	if err != nil {
		return entities.LifeSnapshot{}, dbError("LoadLifeSnapshot", err)
	}
	return snapshot, nil
}

func (s *Store) LoadOpenRequests(ctx context.Context, companionID valueobjects.CompanionID) ([]*entities.Request, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests
		 WHERE companion_id = ? AND status IN ('pending', 'accepted', 'snoozed')
		 ORDER BY seq`, companionID.String())
	if err != nil {
		return nil, dbError("LoadOpenRequests", err)
	}
	return collectRequests("LoadOpenRequests", rows)
}

func (s *Store) LoadRequest(ctx context.Context, companionID valueobjects.CompanionID, requestID valueobjects.RequestID) (*entities.Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ? AND companion_id = ?`,
		requestID.String(), companionID.String())
	snap, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("request", requestID.String())
	}
	if err != nil {
		return nil, dbError("LoadRequest", err)
	}
	return entities.ReconstructRequest(snap), nil
}

func (s *Store) LoadRituals(ctx context.Context, companionID valueobjects.CompanionID, date string) ([]*entities.Ritual, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ritualColumns+` FROM rituals WHERE companion_id = ? AND ritual_date = ? ORDER BY seq`,
		companionID.String(), date)
	if err != nil {
		return nil, dbError("LoadRituals", err)
	}
	defer rows.Close()

	var out []*entities.Ritual
	for rows.Next() {
		snap, err := scanRitual(rows)
		if err != nil {
			return nil, dbError("LoadRituals", err)
		}
		out = append(out, entities.ReconstructRitual(snap))
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("LoadRituals", err)
	}
	return out, nil
}

func (s *Store) LoadRitual(ctx context.Context, companionID valueobjects.CompanionID, ritualID valueobjects.RitualID) (*entities.Ritual, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ritualColumns+` FROM rituals WHERE id = ? AND companion_id = ?`,
		ritualID.String(), companionID.String())
	snap, err := scanRitual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("ritual", ritualID.String())
	}
	if err != nil {
		return nil, dbError("LoadRitual", err)
	}
	return entities.ReconstructRitual(snap), nil
}

func (s *Store) SaveRequestStatus(ctx context.Context, update ports.RequestStatusUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE requests
		 SET status = ?, resolved_at = ?, due_at = ?, response_style = COALESCE(?, response_style)
		 WHERE id = ? AND companion_id = ? AND status IN ('pending', 'accepted', 'snoozed')`,
		string(update.Status),
		formatTimePtr(update.ResolvedAt),
		formatTimePtr(update.DueAt),
		update.ResponseStyle,
		update.RequestID.String(),
		update.CompanionID.String(),
	)
	if err != nil {
		return dbError("SaveRequestStatus", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ? AND companion_id = ?`,
		update.RequestID.String(), update.CompanionID.String()).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.NewNotFoundError("request", update.RequestID.String())
	}
	if err != nil {
		return dbError("SaveRequestStatus", err)
	}
	return pkgerrors.NewAlreadyResolvedError("request", update.RequestID.String(), status)
}

func (s *Store) CreateRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	return s.inTx(ctx, "CreateRequests", func(tx *sql.Tx) error {
		return insertRequests(ctx, tx, companionID, requests)
	})
}

func insertRequests(ctx context.Context, tx *sql.Tx, companionID valueobjects.CompanionID, requests []*entities.Request) error {
	if len(requests) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range requests {
		if r.CompanionID() != companionID {
			return pkgerrors.NewValidationError("request belongs to another companion")
		}
		snap := r.Snapshot()
		reqCtx, err := snap.RequestContext.Marshal()
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			snap.ID.String(), snap.CompanionID.String(), snap.RequestType, snap.Title, snap.Prompt,
			string(snap.Urgency), string(snap.Status), formatTimePtr(snap.DueAt),
			formatTime(snap.RequestedAt), formatTimePtr(snap.ResolvedAt), snap.ResponseStyle,
			snap.ConsequenceHint, string(reqCtx),
		); err != nil {
			return conflictOr(err, "request "+snap.ID.String()+" already exists")
		}
	}
	return nil
}

// SaveGeneratedRequests inserts a generation batch and stamps the snapshot in one transaction.
func (s *Store) SaveGeneratedRequests(ctx context.Context, companionID valueobjects.CompanionID, requests []*entities.Request, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	var updated entities.LifeSnapshot
	err := s.inTx(ctx, "SaveGeneratedRequests", func(tx *sql.Tx) error {
		if err := insertRequests(ctx, tx, companionID, requests); err != nil {
			return err
		}
		var err error
		updated, err = s.applyPatch(ctx, tx, companionID, patch)
		return err
	})
	return updated, err
}

func (s *Store) CreateRituals(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	return s.inTx(ctx, "CreateRituals", func(tx *sql.Tx) error {
		return insertRituals(ctx, tx, companionID, rituals)
	})
}

func insertRituals(ctx context.Context, tx *sql.Tx, companionID valueobjects.CompanionID, rituals []*entities.Ritual) error {
	if len(rituals) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rituals (`+ritualColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rituals {
		if r.CompanionID() != companionID {
			return pkgerrors.NewValidationError("ritual belongs to another companion")
		}
		snap := r.Snapshot()
		def, err := json.Marshal(snap.Definition)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			snap.ID.String(), snap.CompanionID.String(), snap.RitualDate, string(snap.Status),
			string(snap.Urgency), formatTimePtr(snap.CompletedAt), formatTime(snap.CreatedAt), string(def),
		); err != nil {
			return conflictOr(err, "ritual "+snap.ID.String()+" already exists")
		}
	}
	return nil
}

// SaveDayTick inserts the day's rituals and applies the snapshot patch in one transaction.
func (s *Store) SaveDayTick(ctx context.Context, companionID valueobjects.CompanionID, rituals []*entities.Ritual, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	var updated entities.LifeSnapshot
	err := s.inTx(ctx, "SaveDayTick", func(tx *sql.Tx) error {
		if err := insertRituals(ctx, tx, companionID, rituals); err != nil {
			return err
		}
		var err error
		updated, err = s.applyPatch(ctx, tx, companionID, patch)
		return err
	})
	return updated, err
}

func (s *Store) UpdateLifeSnapshot(ctx context.Context, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	var updated entities.LifeSnapshot
	err := s.inTx(ctx, "UpdateLifeSnapshot", func(tx *sql.Tx) error {
		var err error
		updated, err = s.applyPatch(ctx, tx, companionID, patch)
		return err
	})
	return updated, err
}

func (s *Store) LoadResolvedRequestsHistory(ctx context.Context, companionID valueobjects.CompanionID, since time.Time, limit int) ([]*entities.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests
		WHERE companion_id = ? AND requested_at >= ?
		ORDER BY requested_at DESC, seq DESC`
	args := []interface{}{companionID.String(), formatTime(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("LoadResolvedRequestsHistory", err)
	}
	return collectRequests("LoadResolvedRequestsHistory", rows)
}

func (s *Store) SaveRitualCompletion(ctx context.Context, ritual *entities.Ritual, patch entities.LifeSnapshotPatch) error {
	return s.inTx(ctx, "SaveRitualCompletion", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rituals SET status = ?, completed_at = ?
			 WHERE id = ? AND companion_id = ? AND status = ?`,
			string(valueobjects.RitualCompleted), formatTimePtr(ritual.CompletedAt()),
			ritual.ID().String(), ritual.CompanionID().String(), string(valueobjects.RitualPending))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM rituals WHERE id = ? AND companion_id = ?`,
				ritual.ID().String(), ritual.CompanionID().String()).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return pkgerrors.NewNotFoundError("ritual", ritual.ID().String())
			}
			if err != nil {
				return err
			}
			return pkgerrors.NewAlreadyResolvedError("ritual", ritual.ID().String(), status)
		}

		_, err = s.applyPatch(ctx, tx, ritual.CompanionID(), patch)
		return err
	})
}

// SeedLifeSnapshot writes snapshot as is.
func (s *Store) SeedLifeSnapshot(ctx context.Context, snapshot entities.LifeSnapshot) error {
	return s.inTx(ctx, "SeedLifeSnapshot", func(tx *sql.Tx) error {
		return upsertSnapshot(ctx, tx, snapshot)
	})
}

func (s *Store) applyPatch(ctx context.Context, tx *sql.Tx, companionID valueobjects.CompanionID, patch entities.LifeSnapshotPatch) (entities.LifeSnapshot, error) {
	now := s.clock.Now()
	current, err := loadSnapshot(ctx, tx, companionID)
	if errors.Is(err, sql.ErrNoRows) {
		current = entities.NewLifeSnapshot(companionID, now)
	} else if err != nil {
		return entities.LifeSnapshot{}, err
	}

	updated := current.Apply(patch, now)
	return updated, upsertSnapshot(ctx, tx, updated)
}

// inTx runs fn in a transaction. AppErrors from fn pass through; anything else
// is reported as a database error.
func (s *Store) inTx(ctx context.Context, operation string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(operation, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if pkgerrors.IsAppError(err) {
			return err
		}
		return dbError(operation, err)
	}
	if err := tx.Commit(); err != nil {
		return dbError(operation, err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func loadSnapshot(ctx context.Context, db queryRower, companionID valueobjects.CompanionID) (entities.LifeSnapshot, error) {
	var (
		snap          entities.LifeSnapshot
		arc           string
		dormant       int
		lastTick      sql.NullString
		lastGenerated sql.NullString
		updatedAt     string
	)
	err := db.QueryRowContext(ctx,
		`SELECT emotional_arc, routine_stability, request_fatigue, care_score, care_consistency,
		        bond_level, is_dormant, last_day_tick_date, last_requests_generated_at, updated_at
		 FROM life_snapshots WHERE companion_id = ?`, companionID.String()).
		Scan(&arc, &snap.RoutineStabilityScore, &snap.RequestFatigue, &snap.CareScore, &snap.CareConsistency,
			&snap.BondLevel, &dormant, &lastTick, &lastGenerated, &updatedAt)
	if err != nil {
		return entities.LifeSnapshot{}, err
	}

	snap.CompanionID = companionID
	snap.CurrentEmotionalArc = valueobjects.EmotionalArc(arc)
	snap.IsDormant = dormant != 0
	snap.LastDayTickDate = lastTick.String
	snap.LastRequestsGeneratedAt = parseNullTime(lastGenerated)
	snap.UpdatedAt, _ = utils.ParseTimestamp(updatedAt)
	return snap, nil
}

func upsertSnapshot(ctx context.Context, db execer, s entities.LifeSnapshot) error {
	var lastTick *string
	if s.LastDayTickDate != "" {
		lastTick = &s.LastDayTickDate
	}
	dormant := 0
	if s.IsDormant {
		dormant = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO life_snapshots (companion_id, emotional_arc, routine_stability, request_fatigue,
		     care_score, care_consistency, bond_level, is_dormant, last_day_tick_date,
		     last_requests_generated_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(companion_id) DO UPDATE SET
		     emotional_arc = excluded.emotional_arc,
		     routine_stability = excluded.routine_stability,
		     request_fatigue = excluded.request_fatigue,
		     care_score = excluded.care_score,
		     care_consistency = excluded.care_consistency,
		     bond_level = excluded.bond_level,
		     is_dormant = excluded.is_dormant,
		     last_day_tick_date = excluded.last_day_tick_date,
		     last_requests_generated_at = excluded.last_requests_generated_at,
		     updated_at = excluded.updated_at`,
		s.CompanionID.String(), string(s.CurrentEmotionalArc), s.RoutineStabilityScore, s.RequestFatigue,
		s.CareScore, s.CareConsistency, s.BondLevel, dormant, lastTick,
		formatTimePtr(s.LastRequestsGeneratedAt), formatTime(s.UpdatedAt),
	)
	return err
}

func collectRequests(operation string, rows *sql.Rows) ([]*entities.Request, error) {
	defer rows.Close()

	var out []*entities.Request
	for rows.Next() {
		snap, err := scanRequest(rows)
		if err != nil {
			return nil, dbError(operation, err)
		}
		out = append(out, entities.ReconstructRequest(snap))
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(operation, err)
	}
	return out, nil
}

func scanRequest(row scanner) (entities.RequestSnapshot, error) {
	var (
		snap                         entities.RequestSnapshot
		id, companionID              string
		urgency, status, requestedAt string
		dueAt, resolvedAt            sql.NullString
		style, hint                  sql.NullString
		reqCtx                       string
	)
	if err := row.Scan(&id, &companionID, &snap.RequestType, &snap.Title, &snap.Prompt, &urgency, &status,
		&dueAt, &requestedAt, &resolvedAt, &style, &hint, &reqCtx); err != nil {
		return entities.RequestSnapshot{}, err
	}

	snap.ID = valueobjects.RequestID(id)
	snap.CompanionID = valueobjects.CompanionID(companionID)
	snap.Urgency = valueobjects.Urgency(urgency)
	snap.Status = valueobjects.RequestStatus(status)
	snap.DueAt = parseNullTime(dueAt)
	snap.RequestedAt, _ = utils.ParseTimestamp(requestedAt)
	snap.ResolvedAt = parseNullTime(resolvedAt)
	snap.ResponseStyle = nullString(style)
	snap.ConsequenceHint = nullString(hint)

	decoded, err := valueobjects.UnmarshalRequestContext([]byte(reqCtx))
	if err != nil {
		decoded = valueobjects.NewRequestContext()
	}
	snap.RequestContext = decoded
	return snap, nil
}

func scanRitual(row scanner) (entities.RitualSnapshot, error) {
	var (
		snap                             entities.RitualSnapshot
		id, companionID, status, urgency string
		completedAt                      sql.NullString
		createdAt, def                   string
	)
	if err := row.Scan(&id, &companionID, &snap.RitualDate, &status, &urgency, &completedAt, &createdAt, &def); err != nil {
		return entities.RitualSnapshot{}, err
	}
	if err := json.Unmarshal([]byte(def), &snap.Definition); err != nil {
		return entities.RitualSnapshot{}, fmt.Errorf("decode ritual definition: %w", err)
	}

	snap.ID = valueobjects.RitualID(id)
	snap.CompanionID = valueobjects.CompanionID(companionID)
	snap.Status = valueobjects.RitualStatus(status)
	snap.Urgency = valueobjects.Urgency(urgency)
	snap.CompletedAt = parseNullTime(completedAt)
	snap.CreatedAt, _ = utils.ParseTimestamp(createdAt)
	return snap, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sortableLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	return utils.ParseTimestampPtr(&s.String)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func dbError(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.NewTimeoutError(operation).WithCause(err)
	}
	return pkgerrors.NewDatabaseError(operation, err)
}

func conflictOr(err error, message string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return pkgerrors.NewConflictError(message)
	}
	return err
}
