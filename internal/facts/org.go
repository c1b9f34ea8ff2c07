package facts

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/neevjustin/sales-portal/internal/dbopen"
)

// Target levels.
const (
	LevelTeam         = "team"
	LevelBusinessUnit = "business_unit"
)

// Org is the reference data document loaded by Import.
type Org struct {
	BusinessUnits []BusinessUnit   `yaml:"business_units"`
	Teams         []TeamRecord     `yaml:"teams"`
	Employees     []EmployeeRecord `yaml:"employees"`
	ActivityTypes []string         `yaml:"activity_types"`
	Targets       []Target         `yaml:"targets"`
}

type BusinessUnit struct {
	ID   int64  `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type TeamRecord struct {
	ID         int64  `yaml:"id" json:"id"`
	CampaignID int64  `yaml:"campaign" json:"campaign_id"`
	UnitID     int64  `yaml:"unit" json:"unit_id"`
	Code       string `yaml:"code" json:"code"`
	Name       string `yaml:"name" json:"name"`
}

type EmployeeRecord struct {
	ID     int64  `yaml:"id" json:"id"`
	Code   string `yaml:"code" json:"code"`
	Name   string `yaml:"name" json:"name"`
	TeamID int64  `yaml:"team" json:"team_id"`
}

// Target is a goal value for one (campaign, level, entity, activity type,
// category). Targets in different categories are summed when scoring.
type Target struct {
	CampaignID   int64  `yaml:"campaign" json:"campaign_id"`
	Level        string `yaml:"level" json:"level"`
	EntityID     int64  `yaml:"entity" json:"entity_id"`
	ActivityType string `yaml:"activity_type" json:"activity_type"`
	Category     string `yaml:"category" json:"category,omitempty"`
	Value        int    `yaml:"value" json:"value"`
}

// ImportStats counts what Import wrote.
type ImportStats struct {
	BusinessUnits int `json:"business_units"`
	Teams         int `json:"teams"`
	Employees     int `json:"employees"`
	ActivityTypes int `json:"activity_types"`
	Targets       int `json:"targets"`
}

// LoadOrg parses an org document from a YAML file.
func LoadOrg(path string) (*Org, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read org %s: %w", path, err)
	}
	var org Org
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&org); err != nil {
		return nil, fmt.Errorf("parse org %s: %w", path, err)
	}
	return &org, nil
}

// Import upserts every record of org in one transaction. Existing rows with
// the same id are overwritten.
func (s *Store) Import(ctx context.Context, org *Org) (ImportStats, error) {
	var stats ImportStats
	if org == nil {
		return stats, fmt.Errorf("%w: org is required", ErrInvalid)
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stats = ImportStats{}
		for _, name := range org.ActivityTypes {
			if _, err := upsertActivityType(ctx, tx, name); err != nil {
				return err
			}
			stats.ActivityTypes++
		}
		for _, u := range org.BusinessUnits {
			if u.ID == 0 {
				return fmt.Errorf("%w: business unit id is required", ErrInvalid)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO business_units (id, name) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name
			`, u.ID, u.Name); err != nil {
				return fmt.Errorf("upsert business unit %d: %w", u.ID, err)
			}
			stats.BusinessUnits++
		}
		for _, t := range org.Teams {
			if t.ID == 0 || t.CampaignID == 0 {
				return fmt.Errorf("%w: team id and campaign are required", ErrInvalid)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO teams (id, campaign_id, unit_id, code, name) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					campaign_id = excluded.campaign_id,
					unit_id = excluded.unit_id,
					code = excluded.code,
					name = excluded.name
			`, t.ID, t.CampaignID, nullID(t.UnitID), t.Code, t.Name); err != nil {
				return fmt.Errorf("upsert team %d: %w", t.ID, err)
			}
			stats.Teams++
		}
		for _, e := range org.Employees {
			if e.ID == 0 {
				return fmt.Errorf("%w: employee id is required", ErrInvalid)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO employees (id, code, name, team_id) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					code = excluded.code,
					name = excluded.name,
					team_id = excluded.team_id
			`, e.ID, e.Code, e.Name, nullID(e.TeamID)); err != nil {
				return fmt.Errorf("upsert employee %d: %w", e.ID, err)
			}
			stats.Employees++
		}
		for _, t := range org.Targets {
			if err := setTarget(ctx, tx, t); err != nil {
				return err
			}
			stats.Targets++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}

// SetTarget creates or overwrites a target.
func (s *Store) SetTarget(ctx context.Context, t Target) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		return setTarget(ctx, tx, t)
	})
}

// DeleteTarget removes a target. Missing targets are not an error.
func (s *Store) DeleteTarget(ctx context.Context, t Target) error {
	level, err := normalizeLevel(t.Level)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM targets
		WHERE campaign_id = ? AND level = ? AND entity_id = ? AND category = ?
		  AND activity_type_id = (SELECT id FROM activity_types WHERE name = ?)
	`, t.CampaignID, level, t.EntityID, t.Category, t.ActivityType)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	return nil
}

func setTarget(ctx context.Context, tx *sql.Tx, t Target) error {
	level, err := normalizeLevel(t.Level)
	if err != nil {
		return err
	}
	if t.CampaignID == 0 || t.EntityID == 0 {
		return fmt.Errorf("%w: target campaign and entity are required", ErrInvalid)
	}
	if t.Value < 0 {
		return fmt.Errorf("%w: target value must be >= 0", ErrInvalid)
	}
	typeID, err := lookupActivityType(ctx, tx, t.ActivityType)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO targets (campaign_id, level, entity_id, activity_type_id, category, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, level, entity_id, activity_type_id, category)
		DO UPDATE SET value = excluded.value
	`, t.CampaignID, level, t.EntityID, typeID, t.Category, t.Value); err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

func normalizeLevel(level string) (string, error) {
	switch strings.TrimSpace(level) {
	case LevelTeam:
		return LevelTeam, nil
	case LevelBusinessUnit, "ba", "unit":
		return LevelBusinessUnit, nil
	default:
		return "", fmt.Errorf("%w: unknown target level %q", ErrInvalid, level)
	}
}

func upsertActivityType(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: activity type name is required", ErrInvalid)
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO activity_types (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("insert activity type %q: %w", name, err)
	}
	return lookupActivityType(ctx, tx, name)
}

func lookupActivityType(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM activity_types WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("activity type %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load activity type %q: %w", name, err)
	}
	return id, nil
}

// EmployeeTeam returns the team of an employee, zero when unassigned.
func (s *Store) EmployeeTeam(ctx context.Context, employeeID int64) (int64, error) {
	var team sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT team_id FROM employees WHERE id = ?", employeeID).Scan(&team)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("employee %d: %w", employeeID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("load employee: %w", err)
	}
	return team.Int64, nil
}
