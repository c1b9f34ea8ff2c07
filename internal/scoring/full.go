package scoring

import (
	"fmt"
	"sort"

	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
)

// Result is the complete score view derived from one snapshot.
type Result struct {
	Teams     []scores.Row
	Units     []scores.Row
	Employees []scores.Row
	// Gates lists every evaluated unit gate, whether or not it fired.
	Gates []GateDecision
	// UnknownTypes names activity types the rule table does not map to a kind.
	UnknownTypes []string
}

// GateDecision records one evaluation of the unit achievement gate.
type GateDecision struct {
	UnitID    int64   `json:"unit_id"`
	Parameter string  `json:"parameter"`
	Achieved  int     `json:"achieved"`
	Target    int     `json:"target"`
	Ratio     float64 `json:"ratio"`
	Threshold float64 `json:"threshold"`
	RawPoints float64 `json:"raw_points"`
	Zeroed    bool    `json:"zeroed"`
}

// Scopes groups the result by entity type for Store.ReplaceScopes.
func (r *Result) Scopes() map[scores.EntityType][]scores.Row {
	return map[scores.EntityType][]scores.Row{
		scores.Employee:     r.Employees,
		scores.Team:         r.Teams,
		scores.BusinessUnit: r.Units,
	}
}

// Rows returns every row of the result in one slice.
func (r *Result) Rows() []scores.Row {
	out := make([]scores.Row, 0, len(r.Teams)+len(r.Units)+len(r.Employees))
	out = append(out, r.Employees...)
	out = append(out, r.Teams...)
	out = append(out, r.Units...)
	return out
}

type rowKey struct {
	id    int64
	param string
}

// rowSet accumulates points per (entity, parameter).
type rowSet map[rowKey]float64

func (s rowSet) add(id int64, param string, pts float64) { s[rowKey{id, param}] += pts }

func (s rowSet) rows(et scores.EntityType) []scores.Row {
	out := make([]scores.Row, 0, len(s))
	for k, v := range s {
		out = append(out, scores.Row{EntityType: et, EntityID: k.id, Parameter: k.param, Points: v})
	}
	scores.SortRows(out)
	return out
}

// Full derives team, unit and employee rows for a campaign. It reads no
// clock and no store, so equal inputs always produce equal results.
func Full(snap *Snapshot, rs *rules.RuleSet) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	if rs == nil {
		return nil, fmt.Errorf("rule set is required")
	}

	c := calc{snap: snap, rs: rs}
	teams := append([]Team(nil), snap.Teams...)
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })

	inCampaign := make(map[int64]bool, len(teams))
	for _, t := range teams {
		inCampaign[t.ID] = true
	}
	headcount := make(map[int64]int)
	for _, e := range snap.Employees {
		if inCampaign[e.TeamID] {
			headcount[e.TeamID]++
		}
	}

	teamRows := make(rowSet)
	unitRows := make(rowSet)
	members := make(map[int64][]int64)
	for _, t := range teams {
		params := make(rowSet)
		for _, p := range rs.Team.Parameters {
			achieved := c.teamAchieved(t.ID, p.Kind)
			target := c.teamTarget(t.ID, p.Kind)
			params.add(t.ID, p.Parameter, Proportional(achieved, target, p.MaxPoints))
		}
		inv := rs.Team.Involvement
		params.add(t.ID, inv.Parameter, Proportional(snap.ActiveEmployees[t.ID], headcount[t.ID], inv.MaxPoints))
		mela := rs.Team.Melas
		params.add(t.ID, mela.Parameter, Proportional(snap.Melas[t.ID], mela.Target, mela.MaxPoints))

		for k, v := range params {
			teamRows[k] += v
			if t.UnitID != 0 {
				unitRows.add(t.UnitID, k.param, v)
			}
		}
		if t.UnitID != 0 {
			members[t.UnitID] = append(members[t.UnitID], t.ID)
		}
	}

	res := &Result{}
	res.Gates = c.applyGate(unitRows, members)

	units := make(map[int64]struct{})
	for _, id := range snap.Units {
		units[id] = struct{}{}
	}
	for id := range members {
		units[id] = struct{}{}
	}
	for id := range units {
		if ev := rs.Unit.SpecialEvents; snap.SpecialEvents[id] >= ev.MinCount {
			unitRows.add(id, ev.Parameter, ev.Points)
		}
		if pr := rs.Unit.PressReleases; snap.PressReleases[id] >= pr.MinCount {
			unitRows.add(id, pr.Parameter, pr.Points)
		}
	}

	// Lead credit lands on the employee's team after unit aggregation, so
	// units never see it. Teams outside the campaign get nothing.
	for _, e := range snap.Employees {
		tally := snap.Leads[e.ID]
		if tally.Total == 0 || !inCampaign[e.TeamID] || tally.Rate() < rs.Leads.Threshold {
			continue
		}
		for _, credit := range rs.Leads.Credits {
			teamRows.add(e.TeamID, credit.Parameter, credit.Points)
		}
	}

	unknown := make(map[string]struct{})
	for _, name := range snap.ActivityTypes {
		if _, ok := rs.KindOf(name); !ok {
			unknown[name] = struct{}{}
		}
	}
	employeeIDs := make([]int64, 0, len(snap.EmployeeCounts))
	for id := range snap.EmployeeCounts {
		employeeIDs = append(employeeIDs, id)
	}
	sort.Slice(employeeIDs, func(i, j int) bool { return employeeIDs[i] < employeeIDs[j] })
	for _, id := range employeeIDs {
		rows, missing := Incremental(id, snap.EmployeeCounts[id], rs)
		res.Employees = append(res.Employees, rows...)
		for _, name := range missing {
			unknown[name] = struct{}{}
		}
	}

	res.Teams = teamRows.rows(scores.Team)
	res.Units = unitRows.rows(scores.BusinessUnit)
	for name := range unknown {
		res.UnknownTypes = append(res.UnknownTypes, name)
	}
	sort.Strings(res.UnknownTypes)
	return res, nil
}

type calc struct {
	snap *Snapshot
	rs   *rules.RuleSet
}

func (c calc) teamAchieved(team int64, kind rules.Kind) int {
	n := 0
	for _, name := range c.rs.NamesOf(kind) {
		n += c.snap.TeamCounts[TeamType{team, name}]
	}
	return n
}

func (c calc) teamTarget(team int64, kind rules.Kind) int {
	n := 0
	for _, name := range c.rs.NamesOf(kind) {
		n += c.snap.TeamTargets[TeamType{team, name}]
	}
	return n
}

func (c calc) unitTarget(unit int64, kind rules.Kind) int {
	n := 0
	for _, name := range c.rs.NamesOf(kind) {
		n += c.snap.UnitTargets[UnitType{unit, name}]
	}
	return n
}

// applyGate zeroes the gated parameter of every unit whose achievement
// ratio against its own unit target is under the threshold. Achievement is
// read from raw team counts, not from the team scores just summed.
func (c calc) applyGate(unitRows rowSet, members map[int64][]int64) []GateDecision {
	gate := c.rs.Unit.Gate
	if gate.Parameter == "" {
		return nil
	}
	kind, ok := c.rs.GateKind()
	if !ok {
		return nil
	}

	unitIDs := make([]int64, 0, len(members))
	for id := range members {
		unitIDs = append(unitIDs, id)
	}
	sort.Slice(unitIDs, func(i, j int) bool { return unitIDs[i] < unitIDs[j] })

	var decisions []GateDecision
	for _, unit := range unitIDs {
		target := c.unitTarget(unit, kind)
		if target <= 0 {
			continue
		}
		achieved := 0
		for _, team := range members[unit] {
			achieved += c.teamAchieved(team, kind)
		}
		key := rowKey{unit, gate.Parameter}
		d := GateDecision{
			UnitID:    unit,
			Parameter: gate.Parameter,
			Achieved:  achieved,
			Target:    target,
			Ratio:     float64(achieved) / float64(target),
			Threshold: gate.Threshold,
			RawPoints: unitRows[key],
		}
		if d.Ratio < gate.Threshold {
			d.Zeroed = true
			unitRows[key] = 0
		}
		decisions = append(decisions, d)
	}
	return decisions
}
