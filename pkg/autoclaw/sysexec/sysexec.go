// Package sysexec runs shell commands and scripts under safety gate
// supervision.
package sysexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"autoclaw/pkg/autoclaw/safety"
)

// Config controls command execution limits.
type Config struct {
	// Timeout bounds a single command run.
	Timeout time.Duration

	// MaxOutput caps captured stdout and stderr, each.
	MaxOutput int64

	// Shell is the interpreter for Run. Defaults to /bin/sh.
	Shell string
}

// DefaultConfig returns execution defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Minute,
		MaxOutput: 1 << 20,
		Shell:     "/bin/sh",
	}
}

// Result captures a finished command.
type Result struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// Success reports a zero exit code.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Executor runs commands after passing them through the safety gate.
type Executor struct {
	cfg    Config
	gate   *safety.Gate
	logger *slog.Logger
}

// NewExecutor creates an executor. gate must not be nil.
func NewExecutor(cfg Config, gate *safety.Gate, logger *slog.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 1 << 20
	}
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:    cfg,
		gate:   gate,
		logger: logger.With("component", "sysexec"),
	}
}

// ErrConfirmationRequired is returned when a dangerous command needs
// the caller to confirm before running.
var ErrConfirmationRequired = fmt.Errorf("command requires confirmation")

// Run executes a shell command line. Commands the gate marks unsafe
// return ErrConfirmationRequired unless confirmed is set; commands the
// gate blocks never run.
func (e *Executor) Run(ctx context.Context, command string, confirmed bool) (Result, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{}, fmt.Errorf("empty command")
	}

	check := e.gate.CheckCommand(command)
	if check.Blocked {
		return Result{}, fmt.Errorf("command blocked: %s", check.Reason)
	}
	if !check.Safe && !confirmed {
		return Result{}, fmt.Errorf("%w: %s", ErrConfirmationRequired, command)
	}
	if !check.Safe && !e.gate.AllowDangerous("sysexec") {
		return Result{}, fmt.Errorf("dangerous command rate limited: %s", command)
	}

	return e.run(ctx, e.cfg.Shell, "-c", command)
}

// IsDangerous reports whether the gate would require confirmation for
// a command.
func (e *Executor) IsDangerous(command string) bool {
	check := e.gate.CheckCommand(command)
	return !check.Safe
}

func (e *Executor) run(ctx context.Context, name string, args ...string) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stdout, stderr boundedBuffer
	stdout.limit = e.cfg.MaxOutput
	stderr.limit = e.cfg.MaxOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	display := strings.Join(append([]string{name}, args...), " ")
	e.logger.Info("executing command", "command", truncate(display, 120))

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Command:  display,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		return res, fmt.Errorf("command timed out after %s", e.cfg.Timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			e.logger.Warn("command failed",
				"command", truncate(display, 120),
				"exit_code", res.ExitCode)
			return res, nil
		}
		return res, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}

// RunScript makes a script executable and runs it directly.
func (e *Executor) RunScript(ctx context.Context, path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("script not found: %s", path)
	}
	if info.IsDir() {
		return Result{}, fmt.Errorf("%s is a directory", path)
	}

	check := e.gate.CheckFileOp(path, "execute")
	if !check.Safe {
		return Result{}, fmt.Errorf("script blocked: %s", check.Reason)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, info.Mode()|0o100); err != nil {
			return Result{}, fmt.Errorf("make script executable: %w", err)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, fmt.Errorf("resolve script path: %w", err)
	}
	return e.run(ctx, abs)
}

// CreateStartupScript writes an executable shell script into the
// user's home directory and returns its path.
func (e *Executor) CreateStartupScript(name, content string) (string, error) {
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid script name: %s", name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}

	path := filepath.Join(home, name+".sh")
	if !strings.HasPrefix(content, "#!") {
		content = "#!/bin/sh\n" + content
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		return "", fmt.Errorf("write startup script: %w", err)
	}
	e.logger.Info("startup script created", "path", path)
	return path, nil
}

// boundedBuffer keeps at most limit bytes and discards the rest.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
