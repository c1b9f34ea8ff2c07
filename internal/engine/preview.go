package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/neevjustin/sales-portal/internal/scores"
)

// Preview computes a full pass for campaign and returns a unified diff between
// the stored rows and the rows the pass would commit. Nothing is written. An
// empty diff means the stored view is current.
func (e *Engine) Preview(ctx context.Context, campaign int64) (string, Summary, error) {
	rs := e.rules.Load()
	sum := Summary{Mode: "preview", Campaign: campaign, RulesVersion: rs.Version}

	res, err := e.Compute(ctx, campaign)
	if err != nil {
		return "", sum, err
	}
	sum.TeamRows = len(res.Teams)
	sum.UnitRows = len(res.Units)
	sum.EmployeeRows = len(res.Employees)
	sum.Gates = res.Gates
	sum.UnknownTypes = res.UnknownTypes

	var stored []scores.Row
	for _, et := range []scores.EntityType{scores.Employee, scores.Team, scores.BusinessUnit} {
		rows, err := e.scores.Rows(ctx, campaign, et, 0)
		if err != nil {
			return "", sum, fmt.Errorf("read stored %s rows: %w", et, err)
		}
		stored = append(stored, rows...)
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        renderRows(stored),
		B:        renderRows(res.Rows()),
		FromFile: "stored",
		ToFile:   "recomputed",
		Context:  1,
	})
	if err != nil {
		return "", sum, fmt.Errorf("diff scores: %w", err)
	}
	return diff, sum, nil
}

func renderRows(rows []scores.Row) []string {
	sorted := append([]scores.Row(nil), rows...)
	scores.SortRows(sorted)
	lines := make([]string, 0, len(sorted))
	for _, r := range sorted {
		lines = append(lines, fmt.Sprintf("%s %d %s = %s\n",
			r.EntityType, r.EntityID, r.Parameter, strconv.FormatFloat(r.Points, 'f', 2, 64)))
	}
	return lines
}
