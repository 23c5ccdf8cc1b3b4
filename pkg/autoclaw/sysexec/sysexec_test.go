package sysexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoclaw/pkg/autoclaw/safety"
)

func testExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	gate := safety.NewGate(safety.DefaultConfig(), nil, nil)
	return NewExecutor(cfg, gate, nil)
}

func TestRunSuccess(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	res, err := e.Run(context.Background(), "echo hello", false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	if _, err := e.Run(context.Background(), "  ", false); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestRunBlockedCommand(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	_, err := e.Run(context.Background(), "rm -rf /", false)
	if err == nil {
		t.Fatal("expected blocked command to error")
	}
	if errors.Is(err, ErrConfirmationRequired) {
		t.Error("blocked command must not be confirmable")
	}
}

func TestRunDangerousRequiresConfirmation(t *testing.T) {
	e := testExecutor(t, DefaultConfig())

	// Contains a dangerous pattern but only echoes it.
	_, err := e.Run(context.Background(), "echo kill -9 demo", false)
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}

	res, err := e.Run(context.Background(), "echo kill -9 demo", true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() || !strings.Contains(res.Stdout, "kill -9 demo") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestIsDangerous(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	if e.IsDangerous("ls -la") {
		t.Error("ls flagged as dangerous")
	}
	if !e.IsDangerous("killall myproc") {
		t.Error("killall not flagged")
	}
}

func TestRunNonzeroExit(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	res, err := e.Run(context.Background(), "exit 3", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success() || res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	e := testExecutor(t, cfg)

	res, err := e.Run(context.Background(), "sleep 5", false)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !res.TimedOut {
		t.Error("TimedOut not set")
	}
}

func TestRunOutputTruncated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOutput = 16
	e := testExecutor(t, cfg)

	res, err := e.Run(context.Background(), "echo 0123456789abcdefghij", false)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Stdout, "[output truncated]") {
		t.Errorf("expected truncation marker, got %q", res.Stdout)
	}
	if strings.Contains(res.Stdout, "ghij") {
		t.Errorf("output not capped: %q", res.Stdout)
	}
}

func TestRunScript(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	path := filepath.Join(t.TempDir(), "hello.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho from-script\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := e.RunScript(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(res.Stdout) != "from-script" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestRunScriptMissing(t *testing.T) {
	e := testExecutor(t, DefaultConfig())
	if _, err := e.RunScript(context.Background(), "/nonexistent/script.sh"); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestCreateStartupScript(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	e := testExecutor(t, DefaultConfig())

	path, err := e.CreateStartupScript("autostart", "echo booted")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "#!/bin/sh\n") {
		t.Errorf("missing shebang: %q", data)
	}
	info, _ := os.Stat(path)
	if info.Mode()&0o100 == 0 {
		t.Error("script not executable")
	}

	if _, err := e.CreateStartupScript("../escape", "echo x"); err == nil {
		t.Error("expected error for path traversal in name")
	}
}

func TestInstallPackageValidation(t *testing.T) {
	e := testExecutor(t, DefaultConfig())

	if _, err := e.InstallPackage(context.Background(), "", "apt"); err == nil {
		t.Error("expected error for empty package")
	}
	if _, err := e.InstallPackage(context.Background(), "curl; rm x", "apt"); err == nil {
		t.Error("expected error for shell metacharacters")
	}
	if _, err := e.InstallPackage(context.Background(), "curl", "snapzilla"); err == nil {
		t.Error("expected error for unknown manager")
	}
}

func TestDetectPackageManager(t *testing.T) {
	orig := lookPath
	defer func() { lookPath = orig }()

	lookPath = func(name string) (string, error) {
		if name == "dnf" {
			return "/usr/bin/dnf", nil
		}
		return "", os.ErrNotExist
	}
	if got := DetectPackageManager(); got != "dnf" && got != "pip" {
		t.Errorf("manager = %q", got)
	}

	lookPath = func(name string) (string, error) {
		return "", os.ErrNotExist
	}
	if got := DetectPackageManager(); got != "pip" {
		t.Errorf("fallback manager = %q, want pip", got)
	}
}
