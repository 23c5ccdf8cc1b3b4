package safety

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	return NewGate(DefaultConfig(), nil, nil)
}

func TestCheckCommandBlocked(t *testing.T) {
	gate := newTestGate(t)

	cases := []string{
		"rm -rf /",
		"RM -RF /",
		"sudo mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"shutdown now",
	}
	for _, cmd := range cases {
		res := gate.CheckCommand(cmd)
		if !res.Blocked {
			t.Errorf("CheckCommand(%q): expected blocked, got %+v", cmd, res)
		}
		if res.Safe {
			t.Errorf("CheckCommand(%q): blocked command reported safe", cmd)
		}
	}
}

func TestCheckCommandDangerousNotBlocked(t *testing.T) {
	gate := newTestGate(t)

	res := gate.CheckCommand("kill -9 1234")
	if res.Blocked {
		t.Errorf("kill -9 should be dangerous, not blocked: %+v", res)
	}
	if res.Safe {
		t.Errorf("kill -9 should not be safe: %+v", res)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for dangerous pattern")
	}
}

func TestCheckCommandSafe(t *testing.T) {
	gate := newTestGate(t)

	for _, cmd := range []string{"ls -la", "git status", "echo hello"} {
		res := gate.CheckCommand(cmd)
		if !res.Safe || res.Blocked {
			t.Errorf("CheckCommand(%q) = %+v, want safe", cmd, res)
		}
	}
}

func TestCheckCommandDeletionWarning(t *testing.T) {
	gate := newTestGate(t)

	res := gate.CheckCommand("rm old.log")
	if !res.Safe {
		t.Errorf("plain rm should be safe with warning: %+v", res)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "deletion") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected deletion warning, got %v", res.Warnings)
	}
}

func TestCheckFileOpSizeLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFileSize = 10
	gate := NewGate(cfg, nil, nil)

	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte("this file is larger than ten bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := gate.CheckFileOp(path, "copy")
	if res.Safe {
		t.Errorf("oversized copy should be unsafe: %+v", res)
	}

	res = gate.CheckFileOp(path, "delete")
	if !res.Safe {
		t.Errorf("delete of oversized file should remain safe: %+v", res)
	}
}

func TestCheckFileOpDisallowedType(t *testing.T) {
	gate := newTestGate(t)

	res := gate.CheckFileOp("payload.exe", "copy")
	if res.Safe {
		t.Errorf("copy of .exe should be unsafe: %+v", res)
	}
}

func TestCheckFileOpSystemDir(t *testing.T) {
	gate := newTestGate(t)

	res := gate.CheckFileOp("/usr/lib/libc.so", "delete")
	if res.Safe {
		t.Errorf("delete under /usr should be unsafe: %+v", res)
	}
	res = gate.CheckFileOp("/usr/lib/libc.so", "copy")
	if !res.Safe {
		t.Errorf("copy from /usr should be safe: %+v", res)
	}
}

func TestScanFileSuspiciousContent(t *testing.T) {
	gate := newTestGate(t)

	path := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(path, []byte("harmless text then eval(payload)"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := gate.ScanFile(path)
	if res.Safe {
		t.Errorf("expected threats, got %+v", res)
	}
	if res.SHA256 == "" {
		t.Error("expected file hash")
	}
}

func TestScanFileClean(t *testing.T) {
	gate := newTestGate(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("meeting at noon"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := gate.ScanFile(path)
	if !res.Safe {
		t.Errorf("clean file flagged: %v", res.Threats)
	}
}

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.QuarantineDir = filepath.Join(dir, "quarantine")
	gate := NewGate(cfg, nil, nil)

	path := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dest, err := gate.Quarantine(path, "test")
	if err != nil {
		t.Fatalf("Quarantine: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file still present")
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}
}

func TestRateLimiter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 2
	gate := NewGate(cfg, nil, nil)

	if !gate.AllowDangerous("cli") {
		t.Fatal("first call should pass")
	}
	if !gate.AllowDangerous("cli") {
		t.Fatal("second call should pass")
	}
	if gate.AllowDangerous("cli") {
		t.Error("third call within the window should be limited")
	}
	if !gate.AllowDangerous("other") {
		t.Error("separate caller should have its own bucket")
	}
}
