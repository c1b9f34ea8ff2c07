package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/neevjustin/sales-portal/internal/metrics"
	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
	"github.com/neevjustin/sales-portal/internal/scoring"
)

const auditActor = "engine"

// Facts is the read side of the fact store the engine depends on.
type Facts interface {
	LoadSnapshot(ctx context.Context, campaign int64) (*scoring.Snapshot, error)
	EmployeeCounts(ctx context.Context, campaign, employeeID int64) (map[string]int, error)
}

// Auditor records engine decisions.
type Auditor interface {
	LogEvent(actor string, eventType string, payload any) error
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Audit   Auditor
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Engine recomputes score views from facts. Passes are not serialized against
// each other; the score store's scope replacement is the only write.
type Engine struct {
	facts   Facts
	scores  scores.Store
	rules   atomic.Pointer[rules.RuleSet]
	audit   Auditor
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// Summary describes one finished recompute pass.
type Summary struct {
	Mode         string                 `json:"mode"`
	Campaign     int64                  `json:"campaign"`
	EmployeeID   int64                  `json:"employee_id,omitempty"`
	RulesVersion int                    `json:"rules_version"`
	TeamRows     int                    `json:"team_rows"`
	UnitRows     int                    `json:"unit_rows"`
	EmployeeRows int                    `json:"employee_rows"`
	Gates        []scoring.GateDecision `json:"gates,omitempty"`
	UnknownTypes []string               `json:"unknown_types,omitempty"`
	Duration     time.Duration          `json:"duration_ns"`
}

// ZeroedGates counts gate decisions that forced a unit parameter to zero.
func (s Summary) ZeroedGates() int {
	n := 0
	for _, g := range s.Gates {
		if g.Zeroed {
			n++
		}
	}
	return n
}

// New builds an Engine over the given stores and rule table.
func New(f Facts, s scores.Store, rs *rules.RuleSet, opts Options) (*Engine, error) {
	if f == nil {
		return nil, fmt.Errorf("fact store is required")
	}
	if s == nil {
		return nil, fmt.Errorf("score store is required")
	}
	if rs == nil {
		rs = rules.Default()
	}
	if err := rs.Validate("rules"); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		facts:   f,
		scores:  s,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  logger,
		now:     time.Now,
	}
	e.rules.Store(rs)
	return e, nil
}

// Rules returns the rule table in effect.
func (e *Engine) Rules() *rules.RuleSet {
	return e.rules.Load()
}

// SetRules swaps the rule table for subsequent passes. A pass already running
// keeps the table it started with.
func (e *Engine) SetRules(rs *rules.RuleSet) error {
	if rs == nil {
		return fmt.Errorf("rule set is required")
	}
	if err := rs.Validate("rules"); err != nil {
		return err
	}
	prev := e.rules.Swap(rs)
	e.logEvent("rules_reloaded", map[string]any{
		"from_version": prev.Version,
		"to_version":   rs.Version,
	})
	return nil
}

// Compute derives the full score view for campaign without writing it.
func (e *Engine) Compute(ctx context.Context, campaign int64) (*scoring.Result, error) {
	snap, err := e.facts.LoadSnapshot(ctx, campaign)
	if err != nil {
		return nil, fmt.Errorf("load facts for campaign %d: %w", campaign, err)
	}
	res, err := scoring.Full(snap, e.rules.Load())
	if err != nil {
		return nil, fmt.Errorf("score campaign %d: %w", campaign, err)
	}
	return res, nil
}

// RecomputeFull rebuilds the employee, team and business unit scopes of
// campaign and commits them together. On error nothing is written.
func (e *Engine) RecomputeFull(ctx context.Context, campaign int64) (Summary, error) {
	start := e.now()
	rs := e.rules.Load()
	sum := Summary{Mode: metrics.ModeFull, Campaign: campaign, RulesVersion: rs.Version}

	err := func() error {
		snap, err := e.facts.LoadSnapshot(ctx, campaign)
		if err != nil {
			return fmt.Errorf("load facts for campaign %d: %w", campaign, err)
		}
		res, err := scoring.Full(snap, rs)
		if err != nil {
			return fmt.Errorf("score campaign %d: %w", campaign, err)
		}
		if err := e.scores.ReplaceScopes(ctx, campaign, res.Scopes()); err != nil {
			return fmt.Errorf("commit scores for campaign %d: %w", campaign, err)
		}
		sum.TeamRows = len(res.Teams)
		sum.UnitRows = len(res.Units)
		sum.EmployeeRows = len(res.Employees)
		sum.Gates = res.Gates
		sum.UnknownTypes = res.UnknownTypes
		return nil
	}()
	sum.Duration = e.now().Sub(start)
	e.metrics.ObserveRecompute(metrics.ModeFull, sum.Duration, err)
	if err != nil {
		e.logEvent("recompute_failed", map[string]any{
			"mode":     metrics.ModeFull,
			"campaign": campaign,
			"error":    err.Error(),
		})
		return sum, err
	}

	e.metrics.SetRows(campaign, string(scores.Team), sum.TeamRows)
	e.metrics.SetRows(campaign, string(scores.BusinessUnit), sum.UnitRows)
	e.metrics.SetRows(campaign, string(scores.Employee), sum.EmployeeRows)
	e.metrics.AddUnknownTypes(len(sum.UnknownTypes))
	e.metrics.MarkFullSuccess(campaign, e.now())
	for _, g := range sum.Gates {
		e.metrics.ObserveGate(g.Parameter, g.Zeroed)
		if g.Zeroed {
			e.logEvent("unit_gate_applied", map[string]any{"campaign": campaign, "gate": g})
		}
	}
	if len(sum.UnknownTypes) > 0 {
		e.logger.Warn("activity types without a rule kind", "campaign", campaign, "types", sum.UnknownTypes)
		e.logEvent("unknown_activity_types", map[string]any{"campaign": campaign, "types": sum.UnknownTypes})
	}
	e.logEvent("recompute_full", sum)
	e.logger.Debug("full recompute committed",
		"campaign", campaign,
		"team_rows", sum.TeamRows,
		"unit_rows", sum.UnitRows,
		"employee_rows", sum.EmployeeRows,
		"zeroed_gates", sum.ZeroedGates(),
		"duration", sum.Duration,
	)
	return sum, nil
}

// RecomputeIncremental replaces one employee's individual rows using the same
// point table as the employee step of a full pass. Team and unit rows are
// never touched.
func (e *Engine) RecomputeIncremental(ctx context.Context, employeeID, campaign int64) (Summary, error) {
	start := e.now()
	rs := e.rules.Load()
	sum := Summary{Mode: metrics.ModeIncremental, Campaign: campaign, EmployeeID: employeeID, RulesVersion: rs.Version}

	err := func() error {
		counts, err := e.facts.EmployeeCounts(ctx, campaign, employeeID)
		if err != nil {
			return fmt.Errorf("load counts for employee %d: %w", employeeID, err)
		}
		rows, unknown := scoring.Incremental(employeeID, counts, rs)
		if err := e.scores.ReplaceEntity(ctx, campaign, scores.Employee, employeeID, rows); err != nil {
			return fmt.Errorf("commit scores for employee %d: %w", employeeID, err)
		}
		sum.EmployeeRows = len(rows)
		sum.UnknownTypes = unknown
		return nil
	}()
	sum.Duration = e.now().Sub(start)
	e.metrics.ObserveRecompute(metrics.ModeIncremental, sum.Duration, err)
	if err != nil {
		return sum, err
	}
	if len(sum.UnknownTypes) > 0 {
		e.metrics.AddUnknownTypes(len(sum.UnknownTypes))
		e.logEvent("unknown_activity_types", map[string]any{
			"campaign": campaign,
			"employee": employeeID,
			"types":    sum.UnknownTypes,
		})
	}
	return sum, nil
}

func (e *Engine) logEvent(eventType string, payload any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.LogEvent(auditActor, eventType, payload); err != nil {
		e.logger.Warn("audit write failed", "event", eventType, "err", err)
	}
}
