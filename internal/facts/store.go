package facts

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neevjustin/sales-portal/internal/dbopen"
)

var (
	// ErrNotFound reports a missing activity, employee or activity type.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateActivity reports a second activity for the same
	// (campaign, activity type, customer) on a bounded activity type.
	ErrDuplicateActivity = errors.New("duplicate activity")
	// ErrInvalid reports input that fails validation before any write.
	ErrInvalid = errors.New("invalid input")
)

const schema = `
CREATE TABLE IF NOT EXISTS business_units (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS teams (
	id INTEGER PRIMARY KEY,
	campaign_id INTEGER NOT NULL,
	unit_id INTEGER REFERENCES business_units(id),
	code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_teams_campaign ON teams(campaign_id);

CREATE TABLE IF NOT EXISTS employees (
	id INTEGER PRIMARY KEY,
	code TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	team_id INTEGER REFERENCES teams(id)
);

CREATE TABLE IF NOT EXISTS activity_types (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL,
	employee_id INTEGER NOT NULL REFERENCES employees(id),
	team_id INTEGER NOT NULL REFERENCES teams(id),
	activity_type_id INTEGER NOT NULL REFERENCES activity_types(id),
	customer_mobile TEXT NOT NULL,
	is_lead INTEGER NOT NULL DEFAULT 0,
	is_converted INTEGER NOT NULL DEFAULT 0,
	logged_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_dedup ON activities(campaign_id, activity_type_id, customer_mobile);
CREATE INDEX IF NOT EXISTS idx_activities_employee ON activities(campaign_id, employee_id);

CREATE TABLE IF NOT EXISTS targets (
	campaign_id INTEGER NOT NULL,
	level TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	activity_type_id INTEGER NOT NULL REFERENCES activity_types(id),
	category TEXT NOT NULL DEFAULT '',
	value INTEGER NOT NULL,
	PRIMARY KEY (campaign_id, level, entity_id, activity_type_id, category)
);

CREATE TABLE IF NOT EXISTS melas (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL,
	team_id INTEGER NOT NULL,
	employee_id INTEGER,
	held_at TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS special_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL,
	unit_id INTEGER NOT NULL,
	employee_id INTEGER,
	held_at TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS press_releases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id INTEGER NOT NULL,
	unit_id INTEGER NOT NULL,
	employee_id INTEGER,
	held_at TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT ''
);
`

// Store is the SQLite-backed fact store: reference data, activities,
// targets and event records.
type Store struct {
	DBPath string
	db     *sql.DB
	now    func() time.Time
}

// Open opens or creates the fact database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("open facts db: %w", err)
	}
	return &Store{DBPath: path, db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, value)
	return t
}
