package safety

import (
	"path/filepath"
	"testing"
	"time"

	"autoclaw/pkg/autoclaw/storage"
)

func TestAuditRecordAndRecent(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	audit := NewAuditLog(db, nil)
	audit.Record("command", "rm -rf /", false, "blocked pattern")
	audit.Record("command", "ls", true, "")

	entries, err := audit.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Subject != "ls" || !entries[0].Allowed {
		t.Errorf("newest entry wrong: %+v", entries[0])
	}
	if entries[1].Allowed {
		t.Errorf("blocked entry recorded as allowed: %+v", entries[1])
	}
}

func TestAuditPrune(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	audit := NewAuditLog(db, nil)
	audit.Record("command", "old", true, "")

	n, err := audit.Prune(-time.Minute)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}

	entries, err := audit.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty log after prune, got %d", len(entries))
	}
}

func TestGateWithAudit(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	defer db.Close()

	gate := NewGate(DefaultConfig(), NewAuditLog(db, nil), nil)
	gate.CheckCommand("shutdown now")

	entries, err := NewAuditLog(db, nil).Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Allowed {
		t.Errorf("expected one denied audit entry, got %+v", entries)
	}
}
