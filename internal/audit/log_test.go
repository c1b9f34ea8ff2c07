package audit

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
)

func TestLogEventAndList(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit", "audit.sqlite"))

	if err := logger.LogEvent("engine", "recompute_started", map[string]any{"campaign": 1}); err != nil {
		t.Fatalf("log: %v", err)
	}
	gate := map[string]any{"unit_id": 3, "parameter": "SIM Sales", "zeroed": true}
	if err := logger.LogEvent("engine", "unit_gate_applied", gate); err != nil {
		t.Fatalf("log: %v", err)
	}

	all, err := logger.Events("", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if got, want := len(all), 2; got != want {
		t.Fatalf("events = %d, want %d", got, want)
	}
	if all[0].Type != "unit_gate_applied" {
		t.Fatalf("newest event = %q, want unit_gate_applied", all[0].Type)
	}

	gates, err := logger.Events("unit_gate_applied", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(gates) != 1 {
		t.Fatalf("gate events = %d, want 1", len(gates))
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(gates[0].PayloadJSON), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["parameter"] != "SIM Sales" || payload["zeroed"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestLogEventConcurrentWriters(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit.sqlite"))
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- logger.LogEvent("test", "tick", map[string]int{"i": i})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent log: %v", err)
		}
	}
	events, err := logger.Events("tick", 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 16 {
		t.Fatalf("events = %d, want 16", len(events))
	}
}
