package facts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neevjustin/sales-portal/internal/scoring"
)

// LoadSnapshot reads every fact a full recompute needs for campaign inside
// one read transaction, so all counts come from the same database state.
func (s *Store) LoadSnapshot(ctx context.Context, campaign int64) (*scoring.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	snap := &scoring.Snapshot{
		Campaign:        campaign,
		TeamCounts:      make(map[scoring.TeamType]int),
		TeamTargets:     make(map[scoring.TeamType]int),
		UnitTargets:     make(map[scoring.UnitType]int),
		ActiveEmployees: make(map[int64]int),
		Melas:           make(map[int64]int),
		SpecialEvents:   make(map[int64]int),
		PressReleases:   make(map[int64]int),
		Leads:           make(map[int64]scoring.LeadTally),
		EmployeeCounts:  make(map[int64]map[string]int),
	}

	steps := []struct {
		name  string
		query string
		args  []any
		scan  func(*sql.Rows) error
	}{
		{
			name:  "teams",
			query: "SELECT id, COALESCE(unit_id, 0) FROM teams WHERE campaign_id = ? ORDER BY id",
			args:  []any{campaign},
			scan: func(r *sql.Rows) error {
				var t scoring.Team
				if err := r.Scan(&t.ID, &t.UnitID); err != nil {
					return err
				}
				snap.Teams = append(snap.Teams, t)
				return nil
			},
		},
		{
			name:  "business units",
			query: "SELECT id FROM business_units ORDER BY id",
			scan: func(r *sql.Rows) error {
				var id int64
				if err := r.Scan(&id); err != nil {
					return err
				}
				snap.Units = append(snap.Units, id)
				return nil
			},
		},
		{
			name: "employees",
			query: `SELECT e.id, e.team_id FROM employees e
				JOIN teams t ON t.id = e.team_id
				WHERE t.campaign_id = ? ORDER BY e.id`,
			args: []any{campaign},
			scan: func(r *sql.Rows) error {
				var e scoring.Employee
				if err := r.Scan(&e.ID, &e.TeamID); err != nil {
					return err
				}
				snap.Employees = append(snap.Employees, e)
				return nil
			},
		},
		{
			name:  "activity types",
			query: "SELECT name FROM activity_types ORDER BY name",
			scan: func(r *sql.Rows) error {
				var name string
				if err := r.Scan(&name); err != nil {
					return err
				}
				snap.ActivityTypes = append(snap.ActivityTypes, name)
				return nil
			},
		},
		{
			name: "team counts",
			query: `SELECT a.team_id, t.name, COUNT(*) FROM activities a
				JOIN activity_types t ON t.id = a.activity_type_id
				WHERE a.campaign_id = ? GROUP BY a.team_id, t.name`,
			args: []any{campaign},
			scan: func(r *sql.Rows) error {
				var k scoring.TeamType
				var n int
				if err := r.Scan(&k.TeamID, &k.Type, &n); err != nil {
					return err
				}
				snap.TeamCounts[k] = n
				return nil
			},
		},
		{
			name: "team targets",
			query: `SELECT g.entity_id, t.name, SUM(g.value) FROM targets g
				JOIN activity_types t ON t.id = g.activity_type_id
				WHERE g.campaign_id = ? AND g.level = ? GROUP BY g.entity_id, t.name`,
			args: []any{campaign, LevelTeam},
			scan: func(r *sql.Rows) error {
				var k scoring.TeamType
				var n int
				if err := r.Scan(&k.TeamID, &k.Type, &n); err != nil {
					return err
				}
				snap.TeamTargets[k] = n
				return nil
			},
		},
		{
			name: "unit targets",
			query: `SELECT g.entity_id, t.name, SUM(g.value) FROM targets g
				JOIN activity_types t ON t.id = g.activity_type_id
				WHERE g.campaign_id = ? AND g.level = ? GROUP BY g.entity_id, t.name`,
			args: []any{campaign, LevelBusinessUnit},
			scan: func(r *sql.Rows) error {
				var k scoring.UnitType
				var n int
				if err := r.Scan(&k.UnitID, &k.Type, &n); err != nil {
					return err
				}
				snap.UnitTargets[k] = n
				return nil
			},
		},
		{
			name:  "active employees",
			query: "SELECT team_id, COUNT(DISTINCT employee_id) FROM activities WHERE campaign_id = ? GROUP BY team_id",
			args:  []any{campaign},
			scan:  countInto(snap.ActiveEmployees),
		},
		{
			name:  "melas",
			query: "SELECT team_id, COUNT(*) FROM melas WHERE campaign_id = ? GROUP BY team_id",
			args:  []any{campaign},
			scan:  countInto(snap.Melas),
		},
		{
			name:  "special events",
			query: "SELECT unit_id, COUNT(*) FROM special_events WHERE campaign_id = ? GROUP BY unit_id",
			args:  []any{campaign},
			scan:  countInto(snap.SpecialEvents),
		},
		{
			name:  "press releases",
			query: "SELECT unit_id, COUNT(*) FROM press_releases WHERE campaign_id = ? GROUP BY unit_id",
			args:  []any{campaign},
			scan:  countInto(snap.PressReleases),
		},
		{
			name: "leads",
			query: `SELECT employee_id, COUNT(*), SUM(is_converted) FROM activities
				WHERE campaign_id = ? AND is_lead = 1 GROUP BY employee_id`,
			args: []any{campaign},
			scan: func(r *sql.Rows) error {
				var id int64
				var l scoring.LeadTally
				if err := r.Scan(&id, &l.Total, &l.Converted); err != nil {
					return err
				}
				snap.Leads[id] = l
				return nil
			},
		},
		{
			name: "employee counts",
			query: `SELECT a.employee_id, t.name, COUNT(*) FROM activities a
				JOIN activity_types t ON t.id = a.activity_type_id
				WHERE a.campaign_id = ? GROUP BY a.employee_id, t.name`,
			args: []any{campaign},
			scan: func(r *sql.Rows) error {
				var id int64
				var name string
				var n int
				if err := r.Scan(&id, &name, &n); err != nil {
					return err
				}
				if snap.EmployeeCounts[id] == nil {
					snap.EmployeeCounts[id] = make(map[string]int)
				}
				snap.EmployeeCounts[id][name] = n
				return nil
			},
		},
	}

	for _, step := range steps {
		if err := queryEach(ctx, tx, step.query, step.args, step.scan); err != nil {
			return nil, fmt.Errorf("load %s: %w", step.name, err)
		}
	}
	return snap, nil
}

// EmployeeCounts returns one employee's activity counts by type name.
func (s *Store) EmployeeCounts(ctx context.Context, campaign, employeeID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(*) FROM activities a
		JOIN activity_types t ON t.id = a.activity_type_id
		WHERE a.campaign_id = ? AND a.employee_id = ?
		GROUP BY t.name
	`, campaign, employeeID)
	if err != nil {
		return nil, fmt.Errorf("query employee counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan employee count: %w", err)
		}
		counts[name] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employee counts: %w", err)
	}
	return counts, nil
}

func countInto(dst map[int64]int) func(*sql.Rows) error {
	return func(r *sql.Rows) error {
		var id int64
		var n int
		if err := r.Scan(&id, &n); err != nil {
			return err
		}
		dst[id] = n
		return nil
	}
}

func queryEach(ctx context.Context, tx *sql.Tx, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
