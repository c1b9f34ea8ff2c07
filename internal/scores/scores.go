// Package scores holds the materialized score view. Rows are keyed by
// (campaign, entity type, entity id, parameter) and are only ever written
// by replacing every row of a (campaign, entity type) scope, or every row
// of one entity, in a single step.
package scores

import (
	"context"
	"fmt"
	"sort"
)

// EntityType is the aggregation level a score row belongs to.
type EntityType string

const (
	Employee     EntityType = "employee"
	Team         EntityType = "team"
	BusinessUnit EntityType = "business_unit"
)

// ParseEntityType accepts the canonical names plus the short aliases used on
// the command line.
func ParseEntityType(value string) (EntityType, error) {
	switch value {
	case "employee", "individual":
		return Employee, nil
	case "team":
		return Team, nil
	case "business_unit", "unit", "ba":
		return BusinessUnit, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", value)
	}
}

// Row is one materialized score value.
type Row struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	Parameter  string     `json:"parameter"`
	Points     float64    `json:"points"`
}

// Standing is an entity's summed points within a ranking.
type Standing struct {
	Rank     int     `json:"rank"`
	EntityID int64   `json:"entity_id"`
	Points   float64 `json:"points"`
}

// Store is the score view. Readers are eventually consistent with writers.
type Store interface {
	// ReplaceScopes atomically replaces every row of each listed scope of
	// campaign. A scope present with an empty slice is cleared.
	ReplaceScopes(ctx context.Context, campaign int64, scopes map[EntityType][]Row) error
	// ReplaceEntity replaces only the rows of one entity.
	ReplaceEntity(ctx context.Context, campaign int64, entityType EntityType, entityID int64, rows []Row) error
	// Rows returns the rows of one scope, optionally narrowed to one entity
	// when entityID is non-zero, ordered by entity id then parameter.
	Rows(ctx context.Context, campaign int64, entityType EntityType, entityID int64) ([]Row, error)
	Total(ctx context.Context, campaign int64, entityType EntityType, entityID int64) (float64, error)
	Ranking(ctx context.Context, campaign int64, entityType EntityType) ([]Standing, error)
	Close() error
}

// SortRows orders rows by entity type, entity id, then parameter.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].EntityType != rows[j].EntityType {
			return rows[i].EntityType < rows[j].EntityType
		}
		if rows[i].EntityID != rows[j].EntityID {
			return rows[i].EntityID < rows[j].EntityID
		}
		return rows[i].Parameter < rows[j].Parameter
	})
}

// Rank sums rows per entity and orders by points descending. Ties go to the
// lower entity id.
func Rank(rows []Row) []Standing {
	totals := make(map[int64]float64)
	for _, r := range rows {
		totals[r.EntityID] += r.Points
	}
	out := make([]Standing, 0, len(totals))
	for id, pts := range totals {
		out = append(out, Standing{EntityID: id, Points: pts})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].EntityID < out[j].EntityID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func checkScope(entityType EntityType, rows []Row) error {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.EntityType != entityType {
			return fmt.Errorf("row for %s %d has entity type %s, want %s", r.Parameter, r.EntityID, r.EntityType, entityType)
		}
		key := fmt.Sprintf("%d\x00%s", r.EntityID, r.Parameter)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate score row %s %d %q", entityType, r.EntityID, r.Parameter)
		}
		seen[key] = struct{}{}
	}
	return nil
}
