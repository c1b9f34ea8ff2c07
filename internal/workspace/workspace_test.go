package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAndEnsureDirs(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ws.FactsDBPath != filepath.Join(root, "data", "facts.sqlite") {
		t.Fatalf("facts db = %s", ws.FactsDBPath)
	}
	if err := ws.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	for _, dir := range []string{ws.DataDir, ws.AuditDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestResolveRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Resolve(file); err == nil {
		t.Fatalf("expected error for file root")
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	ws, err := Resolve(root)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, err := ws.ResolvePath("imports/org.yml")
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	if want := filepath.Join(root, "imports", "org.yml"); got != want {
		t.Fatalf("path = %s, want %s", got, want)
	}
	abs := filepath.Join(root, "elsewhere.yml")
	if got, _ := ws.ResolvePath(abs); got != abs {
		t.Fatalf("absolute path = %s, want %s", got, abs)
	}
}
