package daemon

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neevjustin/sales-portal/internal/dbopen"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS recompute_runs (
	id TEXT PRIMARY KEY,
	trigger TEXT NOT NULL,
	mode TEXT NOT NULL,
	campaign_id INTEGER NOT NULL,
	employee_id INTEGER,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	summary_json TEXT,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON recompute_runs(started_at);

CREATE TABLE IF NOT EXISTS daemon_kv (
	key TEXT PRIMARY KEY,
	value TEXT
);
`

// Store manages the recompute run ledger and daemon state in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Run is one recorded recompute pass.
type Run struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Mode        string     `json:"mode"`
	CampaignID  int64      `json:"campaign_id"`
	EmployeeID  int64      `json:"employee_id,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	SummaryJSON string     `json:"summary,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Open opens or creates the daemon state database.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open daemon db: %w", err)
	}
	return &Store{DBPath: path, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRun records a pass as running and returns its id. Ids are UUIDv7 so
// they sort by creation time.
func (s *Store) StartRun(trigger, mode string, campaign, employee int64, startedAt time.Time) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	var emp sql.NullInt64
	if employee != 0 {
		emp = sql.NullInt64{Int64: employee, Valid: true}
	}
	_, err = s.db.Exec(`
		INSERT INTO recompute_runs (id, trigger, mode, campaign_id, employee_id, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id.String(), trigger, mode, campaign, emp, StatusRunning, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id.String(), nil
}

// FinishRun marks a run succeeded or failed.
func (s *Store) FinishRun(id string, summary any, runErr error, finishedAt time.Time) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	status := StatusSucceeded
	var errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.Exec(`
		UPDATE recompute_runs
		SET status = ?, finished_at = ?, summary_json = ?, error = ?
		WHERE id = ?
	`, status, finishedAt.UTC().Format(time.RFC3339Nano), string(summaryJSON), errText, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	rows, err := s.db.Query(runColumns+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return &runs[0], nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(runColumns+" ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// CountRunning returns how many passes are recorded as running. Passes are
// never serialized, so more than one is normal.
func (s *Store) CountRunning() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM recompute_runs WHERE status = ?", StatusRunning).Scan(&n); err != nil {
		return 0, fmt.Errorf("count running: %w", err)
	}
	return n, nil
}

const runColumns = `
	SELECT id, trigger, mode, campaign_id, employee_id, status, started_at,
	       finished_at, summary_json, error
	FROM recompute_runs`

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var run Run
		var employee sql.NullInt64
		var startedAt string
		var finishedAt, summaryJSON, errText sql.NullString

		err := rows.Scan(
			&run.ID, &run.Trigger, &run.Mode, &run.CampaignID, &employee,
			&run.Status, &startedAt, &finishedAt, &summaryJSON, &errText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
			run.FinishedAt = &t
		}
		run.EmployeeID = employee.Int64
		run.SummaryJSON = summaryJSON.String
		run.Error = errText.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetKV retrieves a value from the key-value store.
func (s *Store) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM daemon_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// SetKV sets a value in the key-value store.
func (s *Store) SetKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_kv (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}
