package facts

import (
	"context"
	"fmt"
	"time"
)

// EventKind selects the event table an Event is written to.
type EventKind string

const (
	EventMela         EventKind = "mela"
	EventSpecial      EventKind = "special"
	EventPressRelease EventKind = "press"
)

// ParseEventKind accepts the canonical kind names.
func ParseEventKind(value string) (EventKind, error) {
	switch EventKind(value) {
	case EventMela, EventSpecial, EventPressRelease:
		return EventKind(value), nil
	default:
		return "", fmt.Errorf("%w: unknown event kind %q (want mela, special or press)", ErrInvalid, value)
	}
}

// Event is a mela (owned by a team) or a special event or press release
// (owned by a business unit). OwnerID names the team or unit.
type Event struct {
	Kind       EventKind `json:"kind"`
	CampaignID int64     `json:"campaign_id"`
	OwnerID    int64     `json:"owner_id"`
	EmployeeID int64     `json:"employee_id,omitempty"`
	HeldAt     time.Time `json:"held_at"`
	Location   string    `json:"location,omitempty"`
}

// LogEvent records an event and returns its id.
func (s *Store) LogEvent(ctx context.Context, ev Event) (int64, error) {
	var table, owner string
	switch ev.Kind {
	case EventMela:
		table, owner = "melas", "team_id"
	case EventSpecial:
		table, owner = "special_events", "unit_id"
	case EventPressRelease:
		table, owner = "press_releases", "unit_id"
	default:
		return 0, fmt.Errorf("%w: unknown event kind %q", ErrInvalid, ev.Kind)
	}
	if ev.CampaignID == 0 || ev.OwnerID == 0 {
		return 0, fmt.Errorf("%w: event campaign and owner are required", ErrInvalid)
	}
	if ev.HeldAt.IsZero() {
		ev.HeldAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+table+" (campaign_id, "+owner+", employee_id, held_at, location) VALUES (?, ?, ?, ?, ?)",
		ev.CampaignID, ev.OwnerID, nullID(ev.EmployeeID), formatTime(ev.HeldAt), ev.Location,
	)
	if err != nil {
		return 0, fmt.Errorf("insert %s event: %w", ev.Kind, err)
	}
	return res.LastInsertId()
}
