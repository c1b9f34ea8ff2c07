package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRulesChangedSinceLastRun(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	rulesPath := filepath.Join(tmpDir, "rules.yml")

	// Missing and never seen.
	changed, err := store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if changed {
		t.Error("expected no change for a file never seen")
	}

	if err := os.WriteFile(rulesPath, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	changed, err = store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if !changed {
		t.Error("expected change on first sighting")
	}

	changed, err = store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if changed {
		t.Error("expected no change on second check")
	}

	if err := os.WriteFile(rulesPath, []byte("version: 1\n# tuned\n"), 0o644); err != nil {
		t.Fatalf("modify rules: %v", err)
	}
	changed, err = store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("third check: %v", err)
	}
	if !changed {
		t.Error("expected change after modification")
	}

	if err := os.Remove(rulesPath); err != nil {
		t.Fatalf("remove rules: %v", err)
	}
	changed, err = store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("deleted check: %v", err)
	}
	if !changed {
		t.Error("expected change after deletion")
	}
	changed, err = store.RulesChangedSinceLastRun(rulesPath)
	if err != nil {
		t.Fatalf("post-delete check: %v", err)
	}
	if changed {
		t.Error("deletion should be reported once")
	}
}
