package scoring

import (
	"sort"

	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
)

// Incremental scores one employee from per-type activity counts using the
// flat point table. Only non-zero rows are returned; activity types the rule
// table cannot map are returned separately.
func Incremental(employeeID int64, counts map[string]int, rs *rules.RuleSet) ([]scores.Row, []string) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []scores.Row
	var unknown []string
	for _, name := range names {
		kind, ok := rs.KindOf(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		pts := rs.PointsFor(kind) * float64(counts[name])
		if pts <= 0 {
			continue
		}
		rows = append(rows, scores.Row{
			EntityType: scores.Employee,
			EntityID:   employeeID,
			Parameter:  name,
			Points:     pts,
		})
	}
	return rows, unknown
}
