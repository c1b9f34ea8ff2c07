package facts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neevjustin/sales-portal/internal/dbopen"
	"github.com/neevjustin/sales-portal/internal/rules"
)

// Activity is one logged field activity.
type Activity struct {
	ID             int64     `json:"id"`
	CampaignID     int64     `json:"campaign_id"`
	EmployeeID     int64     `json:"employee_id"`
	TeamID         int64     `json:"team_id"`
	ActivityTypeID int64     `json:"activity_type_id"`
	ActivityType   string    `json:"activity_type"`
	CustomerMobile string    `json:"customer_mobile"`
	IsLead         bool      `json:"is_lead"`
	IsConverted    bool      `json:"is_converted"`
	LoggedAt       time.Time `json:"logged_at"`
	// ConvertedLeadID is set when logging this activity converted a lead.
	ConvertedLeadID int64 `json:"converted_lead_id,omitempty"`
}

// State returns the lead state of the activity.
func (a Activity) State() LeadState {
	return LeadStateOf(a.IsLead, a.IsConverted)
}

// NewActivity is the input to LogActivity. The team is taken from the
// employee record.
type NewActivity struct {
	CampaignID     int64  `json:"campaign_id"`
	EmployeeID     int64  `json:"employee_id"`
	ActivityType   string `json:"activity_type"`
	CustomerMobile string `json:"customer_mobile"`
	IsLead         bool   `json:"is_lead"`
}

// LogActivity records an activity. Bounded activity types accept one row per
// (campaign, type, customer). A conversion activity flips the most recent
// open lead of the same employee, campaign and customer to converted.
func (s *Store) LogActivity(ctx context.Context, rs *rules.RuleSet, in NewActivity) (*Activity, error) {
	in.CustomerMobile = strings.TrimSpace(in.CustomerMobile)
	if in.CampaignID == 0 {
		return nil, fmt.Errorf("%w: campaign is required", ErrInvalid)
	}
	if in.CustomerMobile == "" {
		return nil, fmt.Errorf("%w: customer mobile is required", ErrInvalid)
	}

	out := &Activity{
		CampaignID:     in.CampaignID,
		EmployeeID:     in.EmployeeID,
		ActivityType:   in.ActivityType,
		CustomerMobile: in.CustomerMobile,
		IsLead:         in.IsLead,
		LoggedAt:       s.now().UTC(),
	}

	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var teamID sql.NullInt64
		err := tx.QueryRowContext(ctx, "SELECT team_id FROM employees WHERE id = ?", in.EmployeeID).Scan(&teamID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("employee %d: %w", in.EmployeeID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load employee: %w", err)
		}
		if !teamID.Valid {
			return fmt.Errorf("%w: employee %d is not assigned to a team", ErrInvalid, in.EmployeeID)
		}
		out.TeamID = teamID.Int64

		err = tx.QueryRowContext(ctx, "SELECT id FROM activity_types WHERE name = ?", in.ActivityType).Scan(&out.ActivityTypeID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("activity type %q: %w", in.ActivityType, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load activity type: %w", err)
		}

		kind, known := rs.KindOf(in.ActivityType)
		if !known || !rs.IsUnbounded(kind) {
			var existingID int64
			var existingEmployee int64
			var existingAt string
			err := tx.QueryRowContext(ctx, `
				SELECT id, employee_id, logged_at FROM activities
				WHERE campaign_id = ? AND activity_type_id = ? AND customer_mobile = ?
				LIMIT 1
			`, in.CampaignID, out.ActivityTypeID, in.CustomerMobile).Scan(&existingID, &existingEmployee, &existingAt)
			if err == nil {
				return fmt.Errorf("%w: activity %d logged by employee %d on %s",
					ErrDuplicateActivity, existingID, existingEmployee, parseTime(existingAt).Format("2006-01-02"))
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("check duplicate: %w", err)
			}
		}

		if known && kind == rs.Leads.ConversionKind {
			leadID, err := convertLead(ctx, tx, rs, in)
			if err != nil {
				return err
			}
			out.ConvertedLeadID = leadID
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO activities (campaign_id, employee_id, team_id, activity_type_id, customer_mobile, is_lead, is_converted, logged_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		`, in.CampaignID, in.EmployeeID, out.TeamID, out.ActivityTypeID, in.CustomerMobile, in.IsLead, formatTime(out.LoggedAt))
		if err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		out.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("activity id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// convertLead moves the most recent open lead matching the conversion to
// the converted state. It returns 0 when nothing matches.
func convertLead(ctx context.Context, tx *sql.Tx, rs *rules.RuleSet, in NewActivity) (int64, error) {
	names := rs.NamesOf(rs.Leads.LeadKind)
	if len(names) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := []any{in.CampaignID, in.EmployeeID, in.CustomerMobile}
	for _, n := range names {
		args = append(args, n)
	}

	var leadID int64
	var isLead, isConverted bool
	err := tx.QueryRowContext(ctx, `
		SELECT a.id, a.is_lead, a.is_converted FROM activities a
		JOIN activity_types t ON t.id = a.activity_type_id
		WHERE a.campaign_id = ? AND a.employee_id = ? AND a.customer_mobile = ?
		  AND a.is_lead = 1 AND a.is_converted = 0
		  AND t.name IN (`+placeholders+`)
		ORDER BY a.logged_at DESC, a.id DESC
		LIMIT 1
	`, args...).Scan(&leadID, &isLead, &isConverted)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find open lead: %w", err)
	}

	next, err := LeadStateOf(isLead, isConverted).Convert()
	if err != nil {
		return 0, fmt.Errorf("lead %d: %w", leadID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE activities SET is_converted = ? WHERE id = ? AND is_converted = 0",
		next == LeadConverted, leadID,
	); err != nil {
		return 0, fmt.Errorf("convert lead %d: %w", leadID, err)
	}
	return leadID, nil
}

// GetActivity loads one activity by id.
func (s *Store) GetActivity(ctx context.Context, id int64) (*Activity, error) {
	var a Activity
	var loggedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.campaign_id, a.employee_id, a.team_id, a.activity_type_id, t.name,
		       a.customer_mobile, a.is_lead, a.is_converted, a.logged_at
		FROM activities a JOIN activity_types t ON t.id = a.activity_type_id
		WHERE a.id = ?
	`, id).Scan(&a.ID, &a.CampaignID, &a.EmployeeID, &a.TeamID, &a.ActivityTypeID, &a.ActivityType,
		&a.CustomerMobile, &a.IsLead, &a.IsConverted, &loggedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	a.LoggedAt = parseTime(loggedAt)
	return &a, nil
}

// DeleteActivity removes an activity and returns what was removed.
func (s *Store) DeleteActivity(ctx context.Context, id int64) (*Activity, error) {
	a, err := s.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM activities WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("delete activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("activity %d: %w", id, ErrNotFound)
	}
	return a, nil
}

// ListActivities returns a campaign's activities, newest first, optionally
// narrowed to one employee when employeeID is non-zero.
func (s *Store) ListActivities(ctx context.Context, campaign, employeeID int64, limit int) ([]Activity, error) {
	query := `
		SELECT a.id, a.campaign_id, a.employee_id, a.team_id, a.activity_type_id, t.name,
		       a.customer_mobile, a.is_lead, a.is_converted, a.logged_at
		FROM activities a JOIN activity_types t ON t.id = a.activity_type_id
		WHERE a.campaign_id = ?`
	args := []any{campaign}
	if employeeID != 0 {
		query += " AND a.employee_id = ?"
		args = append(args, employeeID)
	}
	query += " ORDER BY a.logged_at DESC, a.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		var loggedAt string
		if err := rows.Scan(&a.ID, &a.CampaignID, &a.EmployeeID, &a.TeamID, &a.ActivityTypeID, &a.ActivityType,
			&a.CustomerMobile, &a.IsLead, &a.IsConverted, &loggedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.LoggedAt = parseTime(loggedAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return out, nil
}
