package daemon

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestRunLedger(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "daemon.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	t0 := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	first, err := store.StartRun(TriggerTimer, "full", 1, 0, t0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := store.StartRun(TriggerSync, "incremental", 1, 100, t0.Add(time.Second))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first == second {
		t.Fatalf("run ids collide: %s", first)
	}

	running, err := store.CountRunning()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if running != 2 {
		t.Fatalf("running = %d, want 2", running)
	}

	if err := store.FinishRun(first, map[string]int{"team_rows": 7}, nil, t0.Add(2*time.Second)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := store.FinishRun(second, nil, errors.New("locked"), t0.Add(3*time.Second)); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := store.FinishRun("missing", nil, nil, t0); err == nil {
		t.Fatalf("expected error finishing unknown run")
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second {
		t.Fatalf("runs = %+v, want newest first", runs)
	}
	if runs[0].Status != StatusFailed || runs[0].Error != "locked" || runs[0].EmployeeID != 100 {
		t.Fatalf("failed run = %+v", runs[0])
	}

	got, err := store.GetRun(first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusSucceeded || got.FinishedAt == nil || !got.StartedAt.Equal(t0) {
		t.Fatalf("run = %+v", got)
	}
	var summary map[string]int
	if err := json.Unmarshal([]byte(got.SummaryJSON), &summary); err != nil || summary["team_rows"] != 7 {
		t.Fatalf("summary = %q (%v)", got.SummaryJSON, err)
	}
}

func TestKV(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "daemon.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if v, err := store.GetKV("absent"); err != nil || v != "" {
		t.Fatalf("absent = %q, %v", v, err)
	}
	if err := store.SetKV("k", "v1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetKV("k", "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := store.GetKV("k"); v != "v2" {
		t.Fatalf("k = %q, want v2", v)
	}
}
