package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neevjustin/sales-portal/internal/dbopen"
)

const defaultAuditPath = "audit/events.db"

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts DATETIME NOT NULL,
	actor TEXT NOT NULL,
	type TEXT NOT NULL,
	payload_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
`

// Event is one stored audit record.
type Event struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"ts"`
	Actor       string    `json:"actor"`
	Type        string    `json:"type"`
	PayloadJSON string    `json:"payload"`
}

// Logger writes audit events to a specific SQLite DB path.
type Logger struct {
	DBPath string
}

// NewLogger returns a Logger bound to the provided DB path.
func NewLogger(dbPath string) *Logger {
	return &Logger{DBPath: dbPath}
}

// LogEvent writes an audit event to the configured SQLite-backed log. A nil
// Logger falls back to SALESPORTAL_AUDIT_DB or audit/events.db.
func (l *Logger) LogEvent(actor string, eventType string, payload any) error {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return err
	}
	return writeEvent(resolved, actor, eventType, payload)
}

// Events returns the most recent events, newest first. An empty eventType
// returns every type.
func (l *Logger) Events(eventType string, limit int) ([]Event, error) {
	path := ""
	if l != nil {
		path = l.DBPath
	}
	resolved, err := resolveDBPath(path)
	if err != nil {
		return nil, err
	}
	db, err := dbopen.Open(resolved, dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	query := "SELECT id, ts, actor, type, payload_json FROM events"
	var args []any
	if eventType != "" {
		query += " WHERE type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Type, &e.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func resolveDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dbPath = os.Getenv("SALESPORTAL_AUDIT_DB")
	}
	if dbPath == "" {
		dbPath = defaultAuditPath
	}
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve audit db path: %w", err)
	}
	return absPath, nil
}

func writeEvent(dbPath string, actor string, eventType string, payload any) error {
	db, err := dbopen.Open(dbPath, dbopen.WithSchema(schema))
	if err != nil {
		return fmt.Errorf("open audit db: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = db.Exec(
		"INSERT INTO events (ts, actor, type, payload_json) VALUES (?, ?, ?, ?)",
		time.Now().UTC(),
		actor,
		eventType,
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	return nil
}
