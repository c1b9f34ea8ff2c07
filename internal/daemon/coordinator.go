package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neevjustin/sales-portal/internal/engine"
	"github.com/neevjustin/sales-portal/internal/metrics"
)

// Trigger sources recorded in the run ledger.
const (
	TriggerTimer          = "timer"
	TriggerActivityWrite  = "activity_write"
	TriggerActivityDelete = "activity_delete"
	TriggerSync           = "sync"
	TriggerManual         = "manual"
	TriggerRulesChanged   = "rules_changed"
)

// Recomputer is the engine surface the coordinator drives.
type Recomputer interface {
	RecomputeFull(ctx context.Context, campaign int64) (engine.Summary, error)
	RecomputeIncremental(ctx context.Context, employeeID, campaign int64) (engine.Summary, error)
}

// Coordinator decides when recomputes run. Passes are never queued,
// coalesced or locked against each other; the last commit wins. Timer and
// background passes log and swallow errors, the next trigger being the retry.
// Synchronous and manual passes return them.
type Coordinator struct {
	Engine  Recomputer
	Store   *Store
	Metrics *metrics.Recorder
	Logger  *slog.Logger

	// Campaign is the campaign the timer recomputes.
	Campaign int64
	// Interval is the timer period.
	Interval time.Duration
	// BackgroundTimeout bounds each detached background pass.
	BackgroundTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	now    func() time.Time
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Coordinator) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Run fires a full recompute of Campaign every Interval until ctx is done.
// It does not wait for background passes; callers stop their own producers
// and then call Close.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.Interval <= 0 {
		return fmt.Errorf("recompute interval must be positive")
	}
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.full(ctx, TriggerTimer, c.Campaign); err != nil {
				c.logger().Error("timer recompute failed", "campaign", c.Campaign, "err", err)
			}
		}
	}
}

// Manual runs a full recompute for campaign and returns its outcome.
func (c *Coordinator) Manual(ctx context.Context, campaign int64) (engine.Summary, error) {
	return c.full(ctx, TriggerManual, campaign)
}

// ActivityLogged rescores the acting employee synchronously and schedules a
// background full recompute of the campaign. The incremental error is
// returned; the background pass is fire-and-forget.
func (c *Coordinator) ActivityLogged(ctx context.Context, employeeID, campaign int64) (engine.Summary, error) {
	sum, err := c.incremental(ctx, employeeID, campaign)
	c.Background(ctx, TriggerActivityWrite, campaign)
	return sum, err
}

// ActivityDeleted mirrors ActivityLogged for a removed activity.
func (c *Coordinator) ActivityDeleted(ctx context.Context, employeeID, campaign int64) (engine.Summary, error) {
	sum, err := c.incremental(ctx, employeeID, campaign)
	c.Background(ctx, TriggerActivityDelete, campaign)
	return sum, err
}

// Background starts a full recompute on its own goroutine. The pass keeps
// the values of parent but not its cancellation, so it outlives the request
// that caused it. After Close it is a no-op and reports false.
func (c *Coordinator) Background(parent context.Context, trigger string, campaign int64) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger().Warn("background recompute refused after close", "trigger", trigger, "campaign", campaign)
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	ctx := context.WithoutCancel(parent)
	go func() {
		defer c.wg.Done()
		if c.BackgroundTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.BackgroundTimeout)
			defer cancel()
		}
		if _, err := c.full(ctx, trigger, campaign); err != nil {
			c.logger().Error("background recompute failed", "trigger", trigger, "campaign", campaign, "err", err)
		}
	}()
	return true
}

// Wait blocks until every background pass started so far has finished. It
// must not race with Background; use Close when other goroutines may still
// be triggering passes.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close refuses further background passes and waits for the ones already
// started.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) full(ctx context.Context, trigger string, campaign int64) (engine.Summary, error) {
	c.Metrics.ObserveTrigger(trigger)
	runID := c.startRun(trigger, metrics.ModeFull, campaign, 0)
	sum, err := c.Engine.RecomputeFull(ctx, campaign)
	c.finishRun(runID, sum, err)
	if err == nil {
		c.logger().Info("full recompute",
			"trigger", trigger,
			"campaign", campaign,
			"team_rows", sum.TeamRows,
			"unit_rows", sum.UnitRows,
			"employee_rows", sum.EmployeeRows,
			"zeroed_gates", sum.ZeroedGates(),
			"duration", sum.Duration,
		)
	}
	return sum, err
}

func (c *Coordinator) incremental(ctx context.Context, employeeID, campaign int64) (engine.Summary, error) {
	c.Metrics.ObserveTrigger(TriggerSync)
	runID := c.startRun(TriggerSync, metrics.ModeIncremental, campaign, employeeID)
	sum, err := c.Engine.RecomputeIncremental(ctx, employeeID, campaign)
	c.finishRun(runID, sum, err)
	return sum, err
}

func (c *Coordinator) startRun(trigger, mode string, campaign, employee int64) string {
	if c.Store == nil {
		return ""
	}
	id, err := c.Store.StartRun(trigger, mode, campaign, employee, c.clock())
	if err != nil {
		c.logger().Warn("run ledger write failed", "err", err)
		return ""
	}
	return id
}

func (c *Coordinator) finishRun(id string, sum engine.Summary, runErr error) {
	if c.Store == nil || id == "" {
		return
	}
	if err := c.Store.FinishRun(id, sum, runErr, c.clock()); err != nil {
		c.logger().Warn("run ledger write failed", "run_id", id, "err", err)
	}
}
