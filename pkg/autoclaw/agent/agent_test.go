package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoclaw/pkg/autoclaw/channels"
	"autoclaw/pkg/autoclaw/config"
	"autoclaw/pkg/autoclaw/monitor"
)

func testAgent(t *testing.T) *Agent {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		t.Fatal(err)
	}
	settings := map[string]any{
		"logging.file":        "",
		"database.path":       filepath.Join(dir, "autoclaw.db"),
		"templates.path":      filepath.Join(dir, "templates.yaml"),
		"voice.commands_file": filepath.Join(dir, "voice.json"),
	}
	for key, value := range settings {
		if err := cfg.Set(key, value); err != nil {
			t.Fatal(err)
		}
	}

	a, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNewRegistersDefaultTasks(t *testing.T) {
	a := testAgent(t)

	byName := make(map[string]string)
	for _, task := range a.Scheduler.Tasks() {
		byName[task.Name] = task.Schedule
	}
	want := map[string]string{
		"system_health_check": "*/5 * * * *",
		"cleanup_temp":        "0 3 * * *",
		"prune_history":       "0 4 * * *",
		"daily_summary":       "0 8 * * *",
	}
	for name, schedule := range want {
		if byName[name] != schedule {
			t.Errorf("task %s schedule = %q, want %q", name, byName[name], schedule)
		}
	}
}

func TestNewDisabledChannels(t *testing.T) {
	a := testAgent(t)
	if names := a.Channels.Names(); len(names) != 0 {
		t.Errorf("channels registered with defaults: %v", names)
	}
	if a.Assistant != nil {
		t.Error("assistant built while disabled")
	}
}

func TestExecuteHelp(t *testing.T) {
	a := testAgent(t)
	out, quit := a.Execute(context.Background(), "help")
	if quit {
		t.Error("help should not quit")
	}
	for _, cmd := range []string{"status", "tasks", "run", "alerts", "quit"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help missing %q", cmd)
		}
	}
}

func TestExecuteQuit(t *testing.T) {
	a := testAgent(t)
	if _, quit := a.Execute(context.Background(), "quit"); !quit {
		t.Error("quit did not exit")
	}
	if _, quit := a.Execute(context.Background(), "exit"); !quit {
		t.Error("exit did not exit")
	}
}

func TestExecuteUnknown(t *testing.T) {
	a := testAgent(t)
	out, quit := a.Execute(context.Background(), "frobnicate now")
	if quit || !strings.Contains(out, "unknown command") {
		t.Errorf("out = %q, quit = %v", out, quit)
	}
}

func TestExecuteEmptyLine(t *testing.T) {
	a := testAgent(t)
	out, quit := a.Execute(context.Background(), "   ")
	if out != "" || quit {
		t.Errorf("out = %q, quit = %v", out, quit)
	}
}

func TestExecuteEnableDisable(t *testing.T) {
	a := testAgent(t)

	out, _ := a.Execute(context.Background(), "disable cleanup_temp")
	if strings.Contains(out, "error") {
		t.Fatalf("disable failed: %s", out)
	}
	status, err := a.Scheduler.Status("cleanup_temp")
	if err != nil {
		t.Fatal(err)
	}
	if status.Enabled {
		t.Error("task still enabled after disable")
	}

	a.Execute(context.Background(), "enable cleanup_temp")
	status, _ = a.Scheduler.Status("cleanup_temp")
	if !status.Enabled {
		t.Error("task still disabled after enable")
	}

	out, _ = a.Execute(context.Background(), "disable no_such_task")
	if !strings.Contains(out, "error") {
		t.Errorf("expected error for unknown task, got %q", out)
	}
}

func TestExecuteRunUnknownTask(t *testing.T) {
	a := testAgent(t)
	out, _ := a.Execute(context.Background(), "run no_such_task")
	if !strings.Contains(out, "error") {
		t.Errorf("expected error, got %q", out)
	}
}

func TestExecuteTasksListing(t *testing.T) {
	a := testAgent(t)
	out, _ := a.Execute(context.Background(), "tasks")
	for _, name := range []string{"system_health_check", "cleanup_temp", "prune_history", "daily_summary"} {
		if !strings.Contains(out, name) {
			t.Errorf("tasks output missing %q:\n%s", name, out)
		}
	}
}

func TestExecuteAlertsEmpty(t *testing.T) {
	a := testAgent(t)
	out, _ := a.Execute(context.Background(), "alerts")
	if !strings.Contains(out, "no alerts") {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteAskWithoutAssistant(t *testing.T) {
	a := testAgent(t)
	out, _ := a.Execute(context.Background(), "ask hello")
	if !strings.Contains(out, "not enabled") {
		t.Errorf("out = %q", out)
	}
}

func TestBuildSummary(t *testing.T) {
	a := testAgent(t)
	summary := a.buildSummary()
	if !strings.Contains(summary, "Tasks: 4") {
		t.Errorf("summary missing task count:\n%s", summary)
	}
	if !strings.Contains(summary, "no sample yet") {
		t.Errorf("summary missing monitor line:\n%s", summary)
	}
}

func TestVoiceCommandsRegistered(t *testing.T) {
	a := testAgent(t)

	phrases := make(map[string]bool)
	for _, cmd := range a.Voice.Commands() {
		phrases[cmd.Phrase] = true
	}
	for _, want := range []string{"system status", "list tasks", "check alerts", "run health check"} {
		if !phrases[want] {
			t.Errorf("voice command %q not registered", want)
		}
	}
}

func TestExecuteVoicePhrase(t *testing.T) {
	a := testAgent(t)
	out, _ := a.Execute(context.Background(), "voice what is the system status")
	if !strings.Contains(out, "Tasks: 4") {
		t.Errorf("voice status output = %q", out)
	}
}

func TestHandleVoiceNoMatch(t *testing.T) {
	a := testAgent(t)
	if _, err := a.HandleVoice(context.Background(), "sing me a song"); err == nil {
		t.Error("unmatched phrase without assistant should error")
	}
}

func TestVoiceDisabledNoSpeech(t *testing.T) {
	a := testAgent(t)
	if a.TTS != nil || a.STT != nil {
		t.Error("speech stack built while voice is disabled")
	}
	if _, _, err := a.Speak(context.Background(), "hello"); err == nil {
		t.Error("Speak should fail while voice is disabled")
	}
}

func TestExecuteAlertsShowsPersisted(t *testing.T) {
	a := testAgent(t)
	alert := monitor.Alert{
		ID:       "a1",
		Type:     "cpu",
		Message:  "cpu usage at 95.0%",
		Severity: "critical",
		Time:     time.Now(),
	}
	if err := a.History.Record(alert); err != nil {
		t.Fatal(err)
	}

	out, _ := a.Execute(context.Background(), "alerts")
	if !strings.Contains(out, "cpu usage at 95.0%") {
		t.Errorf("alerts output missing persisted alert:\n%s", out)
	}
}

func TestExecuteAudit(t *testing.T) {
	a := testAgent(t)
	a.Audit.Record("command", "rm -rf /", false, "blocked command")

	out, _ := a.Execute(context.Background(), "audit")
	if !strings.Contains(out, "denied") || !strings.Contains(out, "rm -rf /") {
		t.Errorf("audit output = %q", out)
	}
}

// stubChannel is a minimal channel for exercising the manager paths.
type stubChannel struct {
	name  string
	delay time.Duration
	sent  chan string
}

func (c *stubChannel) Name() string { return c.name }
func (c *stubChannel) Connect(ctx context.Context) error { return nil }
func (c *stubChannel) Disconnect() error { return nil }
func (c *stubChannel) IsConnected() bool { return true }
func (c *stubChannel) Health() channels.HealthStatus {
	return channels.HealthStatus{Connected: true}
}
func (c *stubChannel) Receive() <-chan *channels.IncomingMessage {
	return nil
}

func (c *stubChannel) Send(ctx context.Context, to string, _ *channels.OutgoingMessage) error {
	time.Sleep(c.delay)
	c.sent <- to
	return nil
}

func TestNotifyAlertDoesNotBlock(t *testing.T) {
	a := testAgent(t)
	ch := &stubChannel{name: "email", delay: 200 * time.Millisecond, sent: make(chan string, 1)}
	if err := a.Channels.Register(ch); err != nil {
		t.Fatal(err)
	}
	if err := a.Config.Set("email.recipients", []any{"ops@example.com"}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	a.notifyAlert(monitor.Alert{Severity: "critical", Type: "cpu", Message: "cpu high"})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("notifyAlert blocked for %v", elapsed)
	}

	select {
	case to := <-ch.sent:
		if to != "ops@example.com" {
			t.Errorf("sent to %q", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert email never sent")
	}
}
