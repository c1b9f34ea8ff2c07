package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func TestOpenAppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "x.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
}

func TestRunTxRollsBackOnError(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "x.sqlite"), WithSchema("CREATE TABLE t (v INTEGER)"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	boom := errors.New("boom")
	err = RunTx(context.Background(), db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTx error = %v, want boom", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback = %d, want 0", n)
	}
}

func TestIsBusy(t *testing.T) {
	if IsBusy(nil) {
		t.Fatalf("nil is not busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatalf("expected busy")
	}
	if IsBusy(errors.New("no such table")) {
		t.Fatalf("unexpected busy")
	}
}
