package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/neevjustin/sales-portal/internal/audit"
	"github.com/neevjustin/sales-portal/internal/config"
	"github.com/neevjustin/sales-portal/internal/engine"
	"github.com/neevjustin/sales-portal/internal/facts"
	"github.com/neevjustin/sales-portal/internal/httpx"
	"github.com/neevjustin/sales-portal/internal/metrics"
	"github.com/neevjustin/sales-portal/internal/rules"
	"github.com/neevjustin/sales-portal/internal/scores"
	"github.com/neevjustin/sales-portal/internal/workspace"
)

const shutdownGrace = 10 * time.Second

// Daemon owns every long-lived resource of a workspace: the fact and score
// stores, the engine, the trigger coordinator and the run ledger.
type Daemon struct {
	Workspace   *workspace.Workspace
	Settings    *config.Config
	Facts       *facts.Store
	Scores      scores.Store
	Engine      *engine.Engine
	Coordinator *Coordinator
	Store       *Store
	AuditLogger *audit.Logger
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
}

// Config holds daemon configuration.
type Config struct {
	Workspace *workspace.Workspace
	Settings  *config.Config
	Logger    *slog.Logger
}

// New opens the workspace stores and builds the engine. Nothing runs until
// Run is called, so commands that only need a manual recompute use it too.
func New(cfg Config) (*Daemon, error) {
	if cfg.Workspace == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ws := cfg.Workspace

	rs, err := LoadRules(ws.RulesPath)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		Workspace:   ws,
		Settings:    settings,
		AuditLogger: audit.NewLogger(ws.AuditDBPath),
		Metrics:     metrics.NewRecorder(),
		Logger:      logger,
	}

	d.Facts, err = facts.Open(ws.FactsDBPath)
	if err != nil {
		return nil, err
	}
	if settings.MemoryScores {
		d.Scores = scores.NewMemoryStore()
	} else {
		d.Scores, err = scores.OpenSQLite(ws.ScoresDBPath)
		if err != nil {
			d.Close()
			return nil, err
		}
	}
	d.Store, err = Open(ws.StateDBPath)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Engine, err = engine.New(d.Facts, d.Scores, rs, engine.Options{
		Audit:   d.AuditLogger,
		Metrics: d.Metrics,
		Logger:  logger,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}

	d.Coordinator = &Coordinator{
		Engine:            d.Engine,
		Store:             d.Store,
		Metrics:           d.Metrics,
		Logger:            logger,
		Campaign:          settings.Campaign,
		Interval:          settings.RecomputeInterval,
		BackgroundTimeout: 2 * time.Minute,
	}
	return d, nil
}

// LoadRules reads the workspace rule table, falling back to the built-in
// table when the file does not exist.
func LoadRules(path string) (*rules.RuleSet, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return rules.Default(), nil
	}
	rs, err := rules.Load(path)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Handler returns the HTTP surface bound to this daemon.
func (d *Daemon) Handler() http.Handler {
	return httpx.NewRouter(d.Logger, httpx.Deps{
		Activities: d.Facts,
		Triggers:   d.Coordinator,
		Scores:     d.Scores,
		Rules:      d.Engine.Rules,
		Metrics:    d.Metrics.Handler(),
	})
}

// Run serves HTTP, watches the rule file and fires the recompute timer until
// ctx is done. On shutdown the timer, the server and the watcher stop first;
// in-flight background passes are then awaited.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startPayload := map[string]any{
		"workspace":          d.Workspace.Root,
		"campaign":           d.Settings.Campaign,
		"recompute_interval": d.Settings.RecomputeInterval.String(),
		"listen_addr":        d.Settings.ListenAddr,
		"rules_version":      d.Engine.Rules().Version,
	}
	if err := d.AuditLogger.LogEvent("daemon", "daemon_started", startPayload); err != nil {
		d.Logger.Warn("audit log failed", "err", err)
	}

	changed, err := d.Store.RulesChangedSinceLastRun(d.Workspace.RulesPath)
	if err != nil {
		d.Logger.Warn("rules fingerprint failed", "err", err)
	}
	if changed {
		d.Logger.Info("rules changed since last run", "path", d.Workspace.RulesPath)
		d.Coordinator.Background(ctx, TriggerRulesChanged, d.Settings.Campaign)
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		err := rules.Watch(ctx, d.Workspace.RulesPath, d.reloadRules(ctx))
		if err != nil && ctx.Err() == nil {
			d.Logger.Error("rules watcher stopped", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              d.Settings.ListenAddr,
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		d.Logger.Info("starting server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	runErr := d.Coordinator.Run(ctx)

	// Stop every producer of background passes before closing the coordinator.
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.Logger.Warn("server shutdown", "err", err)
	}
	<-watchDone
	d.Coordinator.Close()

	_ = d.AuditLogger.LogEvent("daemon", "daemon_stopped", map[string]any{"workspace": d.Workspace.Root})

	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return runErr
}

func (d *Daemon) reloadRules(ctx context.Context) func(*rules.RuleSet) {
	return func(rs *rules.RuleSet) {
		if err := d.Engine.SetRules(rs); err != nil {
			d.Logger.Error("rejected rule table", "err", err)
			return
		}
		if _, err := d.Store.RulesChangedSinceLastRun(d.Workspace.RulesPath); err != nil {
			d.Logger.Warn("rules fingerprint failed", "err", err)
		}
		d.Coordinator.Background(ctx, TriggerRulesChanged, d.Settings.Campaign)
	}
}

// Close closes the daemon's stores.
func (d *Daemon) Close() error {
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Scores != nil {
		errs = append(errs, d.Scores.Close())
	}
	if d.Facts != nil {
		errs = append(errs, d.Facts.Close())
	}
	return errors.Join(errs...)
}
