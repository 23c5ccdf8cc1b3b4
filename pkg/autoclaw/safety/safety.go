// Package safety implements the AutoClaw safety gate: advisory checks
// that commands and file operations pass before execution. Matching is
// substring/pattern based and case-insensitive — this is a guard rail,
// not a sandbox.
//
// Every decision is recorded in the audit log (see audit.go).
package safety

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures the safety gate.
type Config struct {
	// ConfirmDangerousActions requires explicit confirmation for
	// dangerous operations instead of allowing them outright.
	ConfirmDangerousActions bool

	// MaxFileSize is the size limit for copy/move/backup targets.
	MaxFileSize int64

	// AllowedFileTypes lists permitted extensions (with dot).
	AllowedFileTypes []string

	// BlockedCommands are substrings that make a command outright
	// blocked (in addition to the built-in dangerous patterns).
	BlockedCommands []string

	// QuarantineDir is where suspicious files are moved.
	QuarantineDir string

	// RatePerMinute caps dangerous operations per caller per minute.
	RatePerMinute int
}

// DefaultConfig returns the gate defaults, mirroring the agent's
// default config document.
func DefaultConfig() Config {
	return Config{
		ConfirmDangerousActions: true,
		MaxFileSize:             100 * 1024 * 1024,
		AllowedFileTypes: []string{
			".txt", ".pdf", ".doc", ".docx", ".jpg", ".png", ".gif", ".mp4", ".mp3",
		},
		BlockedCommands: []string{"rm -rf /", "mkfs", "dd if=", "shutdown", "reboot"},
		QuarantineDir:   "./quarantine",
		RatePerMinute:   30,
	}
}

// dangerousPatterns flag a command as unsafe without outright blocking
// it; the caller decides whether to confirm or refuse.
var dangerousPatterns = []string{
	"rm -rf", "del /s", "format", "fdisk", "dd if=",
	"shutdown", "reboot", "halt", "poweroff",
	"taskkill /f", "kill -9", "killall",
}

// deletionOps and permissionOps only produce warnings.
var (
	deletionOps   = []string{"rm ", "del ", "rmdir ", "rd "}
	permissionOps = []string{"chmod ", "chown ", "attrib "}
)

// systemDirs are directories that must not be modified.
var systemDirs = []string{
	"/system", "/windows", "/program files", "/usr", "/bin", "/sbin",
}

// Result is the outcome of a safety check.
type Result struct {
	// Safe is false when the subject should not proceed without
	// confirmation (or at all, when Blocked).
	Safe bool

	// Blocked means the subject matched a hard blocklist entry.
	Blocked bool

	// Reason explains a block or denial.
	Reason string

	// Warnings are advisory notes that do not change the verdict.
	Warnings []string
}

// Gate performs safety checks and records decisions.
type Gate struct {
	cfg     Config
	audit   *AuditLog
	limiter *callerLimiter
	logger  *slog.Logger
}

// NewGate creates a safety gate. audit may be nil (decisions are then
// only logged).
func NewGate(cfg Config, audit *AuditLog, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	return &Gate{
		cfg:     cfg,
		audit:   audit,
		limiter: newCallerLimiter(perMinute),
		logger:  logger.With("component", "safety"),
	}
}

// CheckCommand evaluates a shell command. A command containing a
// blocked substring is denied; dangerous patterns mark it unsafe;
// deletion and permission changes add warnings.
func (g *Gate) CheckCommand(command string) Result {
	res := Result{Safe: true}
	lower := strings.ToLower(command)

	for _, blocked := range g.cfg.BlockedCommands {
		if blocked != "" && strings.Contains(lower, strings.ToLower(blocked)) {
			res.Safe = false
			res.Blocked = true
			res.Reason = fmt.Sprintf("command contains blocked pattern: %s", blocked)
			break
		}
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			res.Warnings = append(res.Warnings, "command contains dangerous pattern: "+pattern)
			if !res.Blocked {
				res.Safe = false
			}
		}
	}

	for _, op := range deletionOps {
		if strings.Contains(lower, op) {
			res.Warnings = append(res.Warnings, "command performs file deletion")
			break
		}
	}
	for _, op := range permissionOps {
		if strings.Contains(lower, op) {
			res.Warnings = append(res.Warnings, "command modifies file permissions")
			break
		}
	}

	g.record("command", command, res)
	return res
}

// CheckFileOp evaluates a file operation ("copy", "move", "delete",
// "modify", "upload", "backup") against size, extension, and protected
// directory rules.
func (g *Gate) CheckFileOp(path, operation string) Result {
	res := Result{Safe: true}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		if g.cfg.MaxFileSize > 0 && info.Size() > g.cfg.MaxFileSize {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("file size exceeds limit: %d bytes", info.Size()))
			if isTransferOp(operation) {
				res.Safe = false
				res.Reason = "file too large for operation"
			}
		}
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext != "" && !g.extAllowed(ext) {
		res.Warnings = append(res.Warnings, "file type not in allowed list: "+ext)
		if isTransferOp(operation) {
			res.Safe = false
			res.Reason = "file type not allowed"
		}
	}

	lowerPath := strings.ToLower(path)
	for _, dir := range systemDirs {
		if strings.Contains(lowerPath, dir) {
			res.Warnings = append(res.Warnings, "operation on system directory")
			if operation == "delete" || operation == "modify" {
				res.Safe = false
				res.Reason = "cannot modify system directories"
			}
			break
		}
	}

	g.record("file_op:"+operation, path, res)
	return res
}

// AllowDangerous applies the per-caller rate limit to a dangerous
// operation that was confirmed (or runs with confirmation disabled).
func (g *Gate) AllowDangerous(caller string) bool {
	ok := g.limiter.allow(caller)
	if !ok {
		g.logger.Warn("dangerous operation rate limited", "caller", caller)
		g.record("rate_limit", caller, Result{Safe: false, Reason: "rate limit exceeded"})
	}
	return ok
}

// ConfirmationRequired reports whether dangerous actions need user
// confirmation.
func (g *Gate) ConfirmationRequired() bool {
	return g.cfg.ConfirmDangerousActions
}

func (g *Gate) extAllowed(ext string) bool {
	for _, allowed := range g.cfg.AllowedFileTypes {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func isTransferOp(op string) bool {
	switch op {
	case "copy", "move", "upload", "backup":
		return true
	}
	return false
}

func (g *Gate) record(actionType, subject string, res Result) {
	if !res.Safe {
		g.logger.Warn("safety check failed",
			"type", actionType,
			"subject", truncate(subject, 120),
			"blocked", res.Blocked,
			"reason", res.Reason,
		)
	}
	if g.audit != nil {
		g.audit.Record(actionType, subject, res.Safe, res.Reason)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ---------- File scanning and quarantine ----------

// ScanResult is the outcome of scanning a file.
type ScanResult struct {
	Safe     bool
	Threats  []string
	Size     int64
	Modified time.Time
	Ext      string
	SHA256   string
	ScanTime time.Time
}

// suspiciousContent are substrings that flag a text file during a scan.
var suspiciousContent = []string{
	"eval(", "exec(", "system(", "shell_exec(",
	"rm -rf", "del /s", "format",
	"<script>", "javascript:",
	"powershell", "cmd.exe",
}

// textExts are extensions whose content gets scanned.
var textExts = map[string]bool{
	".txt": true, ".log": true, ".py": true, ".js": true,
	".html": true, ".xml": true, ".sh": true, ".go": true,
}

// ScanFile checks size, extension, and (for text files) the first KB of
// content for suspicious patterns, and hashes the file.
func (g *Gate) ScanFile(path string) ScanResult {
	res := ScanResult{Safe: true, ScanTime: time.Now()}

	info, err := os.Stat(path)
	if err != nil {
		res.Safe = false
		res.Threats = append(res.Threats, "file not found")
		return res
	}
	res.Size = info.Size()
	res.Modified = info.ModTime()
	res.Ext = strings.ToLower(filepath.Ext(path))

	if g.cfg.MaxFileSize > 0 && info.Size() > g.cfg.MaxFileSize {
		res.Safe = false
		res.Threats = append(res.Threats, "file size exceeds safety limit")
	}
	if res.Ext != "" && !g.extAllowed(res.Ext) {
		res.Safe = false
		res.Threats = append(res.Threats, "file type not allowed: "+res.Ext)
	}

	if textExts[res.Ext] {
		head := make([]byte, 1024)
		if f, err := os.Open(path); err == nil {
			n, _ := io.ReadFull(f, head)
			f.Close()
			lower := strings.ToLower(string(head[:n]))
			for _, pattern := range suspiciousContent {
				if strings.Contains(lower, pattern) {
					res.Safe = false
					res.Threats = append(res.Threats, "suspicious content detected: "+pattern)
				}
			}
		}
	}

	if sum, err := hashFile(path); err == nil {
		res.SHA256 = sum
	}

	g.record("scan", path, Result{Safe: res.Safe, Reason: strings.Join(res.Threats, "; ")})
	return res
}

// Quarantine moves a file into the quarantine directory under a
// timestamped name.
func (g *Gate) Quarantine(path, reason string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("quarantine %q: %w", path, err)
	}
	if err := os.MkdirAll(g.cfg.QuarantineDir, 0o755); err != nil {
		return "", fmt.Errorf("create quarantine directory: %w", err)
	}

	name := time.Now().Format("20060102_150405") + "_" + filepath.Base(path)
	dest := filepath.Join(g.cfg.QuarantineDir, name)
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("quarantine %q: %w", path, err)
	}

	g.logger.Info("file quarantined", "path", path, "dest", dest, "reason", reason)
	if g.audit != nil {
		g.audit.Record("quarantine", path, true, reason)
	}
	return dest, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ---------- Per-caller rate limiter ----------

// callerLimiter hands each caller its own token bucket.
type callerLimiter struct {
	perMinute int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

func newCallerLimiter(perMinute int) *callerLimiter {
	return &callerLimiter{
		perMinute: perMinute,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (l *callerLimiter) allow(caller string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[caller]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute)
		l.limiters[caller] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
