// Package ledger records pipeline stage runs in SQLite.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for ledger operations
var (
	ErrRunNotFound = errors.New("run not found")
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the run ledger using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Counts tallies the rows a stage run visited.
type Counts struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`
}

// Run is one execution of one stage for one site.
type Run struct {
	RunID      uuid.UUID  `json:"run_id"`
	Site       string     `json:"site"`
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Counts
	LastError *string `json:"last_error,omitempty"`
}

// Finished reports whether the run has completed, successfully or not.
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// RunFilter represents filtering options for listing runs.
type RunFilter struct {
	Site  string // exact site name, empty for all
	Stage string // exact stage name, empty for all
	Limit int
}

// NewStore creates a new ledger store with the given database path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		stage TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		processed INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		empty INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		last_error TEXT
	);
	CREATE INDEX IF NOT EXISTS runs_site_started ON runs (site, started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the start of a stage run.
func (s *Store) StartRun(site, stage string) (*Run, error) {
	run := &Run{
		RunID:     uuid.New(),
		Site:      site,
		Stage:     stage,
		StartedAt: s.now().UTC().Truncate(0),
	}

	query := `INSERT INTO runs (run_id, site, stage, started_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, run.RunID.String(), site, stage, run.StartedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	return run, nil
}

// FinishRun records the outcome of a stage run. A nil runErr clears the
// error column.
func (s *Store) FinishRun(runID uuid.UUID, counts Counts, runErr error) error {
	var lastError any
	if runErr != nil {
		lastError = runErr.Error()
	}

	query := `
		UPDATE runs
		SET finished_at = ?, processed = ?, succeeded = ?, empty = ?, failed = ?, last_error = ?
		WHERE run_id = ?
	`
	result, err := s.db.Exec(query,
		s.now().UTC().Format(timeLayout),
		counts.Processed, counts.Succeeded, counts.Empty, counts.Failed,
		lastError, runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `run_id, site, stage, started_at, finished_at, processed, succeeded, empty, failed, last_error`

// GetRun retrieves a run by its ID.
func (s *Store) GetRun(runID uuid.UUID) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID.String())

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs newest first.
func (s *Store) ListRuns(filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`

	var whereClauses []string
	var args []any

	if filter.Site != "" {
		whereClauses = append(whereClauses, "site = ?")
		args = append(args, filter.Site)
	}
	if filter.Stage != "" {
		whereClauses = append(whereClauses, "stage = ?")
		args = append(args, filter.Stage)
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var runIDStr, site, stage, startedAtStr string
	var finishedAtStr, lastError sql.NullString
	var counts Counts

	err := row.Scan(
		&runIDStr, &site, &stage, &startedAtStr, &finishedAtStr,
		&counts.Processed, &counts.Succeeded, &counts.Empty, &counts.Failed,
		&lastError,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}

	run := &Run{
		RunID:     runID,
		Site:      site,
		Stage:     stage,
		StartedAt: parseTime(startedAtStr),
		Counts:    counts,
	}
	if finishedAtStr.Valid {
		t := parseTime(finishedAtStr.String)
		run.FinishedAt = &t
	}
	if lastError.Valid {
		run.LastError = &lastError.String
	}

	return run, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
