package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/openpatch/autopatch-core/internal/patch"
)

// Attempt is one completed patching attempt.
type Attempt struct {
	ID         string              `json:"id"`
	UnitID     string              `json:"unit_id"`
	TargetID   string              `json:"target_id"`
	WellID     string              `json:"well_id"`
	Outcome    patch.Outcome       `json:"outcome"`
	States     []patch.StateRecord `json:"states"`
	Diagnostic string              `json:"diagnostic,omitempty"`
	FrameID    string              `json:"frame_id,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Filter controls which attempts to return.
type Filter struct {
	UnitID   string        // optional: filter by pipette unit
	TargetID string        // optional: filter by target
	WellID   string        // optional: filter by well
	Outcome  patch.Outcome // optional: filter by final outcome
	Limit    int           // default 50, max 200
	Offset   int           // pagination offset
}

// ListResult contains the paginated attempt results.
type ListResult struct {
	Attempts []Attempt `json:"attempts"`
	Total    int       `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Repository defines the interface for attempt persistence.
type Repository interface {
	Record(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Summary(ctx context.Context) (map[patch.Outcome]int, error)
}

// NewAttemptID generates a ledger attempt identifier.
func NewAttemptID() string {
	return "att-" + uuid.NewString()[:8]
}

// SQLiteRepository stores attempts in the attempts table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new attempt repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a completed attempt. The ID is generated if empty;
// timestamps default to now.
func (r *SQLiteRepository) Record(ctx context.Context, attempt *Attempt) error {
	if attempt.ID == "" {
		attempt.ID = NewAttemptID()
	}
	if attempt.FinishedAt.IsZero() {
		attempt.FinishedAt = time.Now().UTC()
	}
	if attempt.StartedAt.IsZero() {
		attempt.StartedAt = attempt.FinishedAt
	}

	statesJSON, err := json.Marshal(attempt.States)
	if err != nil {
		return fmt.Errorf("marshalling state trace: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO attempts (id, unit_id, target_id, well_id, outcome, states, diagnostic, frame_id, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.UnitID, attempt.TargetID, attempt.WellID,
		string(attempt.Outcome), string(statesJSON),
		nullableString(attempt.Diagnostic), nullableString(attempt.FrameID),
		attempt.StartedAt.UTC().Format(time.RFC3339Nano),
		attempt.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", ErrDuplicate, attempt.ID)
		}
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings, used for nullable TEXT
// columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Get returns a single attempt by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Attempt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, unit_id, target_id, well_id, outcome, states, diagnostic, frame_id, started_at, finished_at
		 FROM attempts WHERE id = ?`, id)

	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return attempt, nil
}

// List returns attempts matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.UnitID != "" {
		conditions = append(conditions, "unit_id = ?")
		args = append(args, filter.UnitID)
	}
	if filter.TargetID != "" {
		conditions = append(conditions, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.WellID != "" {
		conditions = append(conditions, "well_id = ?")
		args = append(args, filter.WellID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE is assembled from parameterised conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attempts %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting attempts: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, unit_id, target_id, well_id, outcome, states, diagnostic, frame_id, started_at, finished_at
		 FROM attempts %s ORDER BY finished_at DESC, id DESC LIMIT ? OFFSET ?`, where)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}

	return &ListResult{
		Attempts: attempts,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// Summary returns the attempt count per outcome across the whole ledger.
func (r *SQLiteRepository) Summary(ctx context.Context) (map[patch.Outcome]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM attempts GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("querying outcome summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[patch.Outcome]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scanning outcome summary: %w", err)
		}
		summary[patch.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome summary: %w", err)
	}
	return summary, nil
}

// scanner abstracts sql.Row and sql.Rows for scanAttempt.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (*Attempt, error) {
	var a Attempt
	var outcome, statesJSON, startedAt, finishedAt string
	var diagnostic, frameID sql.NullString

	if err := s.Scan(&a.ID, &a.UnitID, &a.TargetID, &a.WellID,
		&outcome, &statesJSON, &diagnostic, &frameID,
		&startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning attempt: %w", err)
	}

	a.Outcome = patch.Outcome(outcome)
	if diagnostic.Valid {
		a.Diagnostic = diagnostic.String
	}
	if frameID.Valid {
		a.FrameID = frameID.String
	}
	if statesJSON != "" {
		if err := json.Unmarshal([]byte(statesJSON), &a.States); err != nil {
			return nil, fmt.Errorf("unmarshalling state trace for %s: %w", a.ID, err)
		}
	}

	var err error
	if a.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if a.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
	}
	return &a, nil
}
