package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

const replHelp = `Commands:
  help            show this help
  status          system snapshot and channel health
  tasks           list scheduled tasks
  run <name>      run a task now
  enable <name>   enable a task
  disable <name>  disable a task
  alerts          alerts from the last 24 hours
  audit           recent safety gate decisions
  voice <phrase>  run a phrase through the voice commands
  ask <text>      ask the assistant
  quit            exit`

// Interactive runs the agent prompt until quit, EOF, or context
// cancellation.
func (a *Agent) Interactive(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "autoclaw> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".autoclaw_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init prompt: %w", err)
	}
	defer rl.Close()

	fmt.Println("AutoClaw interactive mode. Type 'help' for commands.")
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		out, quit := a.Execute(ctx, line)
		if out != "" {
			fmt.Println(out)
		}
		if quit {
			return nil
		}
	}
}

// Execute dispatches one prompt line and returns the output plus
// whether the prompt should exit.
func (a *Agent) Execute(ctx context.Context, line string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", false
	}
	cmd, args := fields[0], fields[1:]

	switch strings.ToLower(cmd) {
	case "help":
		return replHelp, false

	case "quit", "exit":
		return "Bye.", true

	case "status":
		return a.statusText(), false

	case "tasks":
		return a.tasksText(), false

	case "run":
		if len(args) == 0 {
			return "usage: run <name>", false
		}
		if err := a.Scheduler.RunNow(ctx, args[0]); err != nil {
			return "error: " + err.Error(), false
		}
		return "task started: " + args[0], false

	case "enable", "disable":
		if len(args) == 0 {
			return fmt.Sprintf("usage: %s <name>", cmd), false
		}
		enabled := strings.ToLower(cmd) == "enable"
		if err := a.Scheduler.SetEnabled(args[0], enabled); err != nil {
			return "error: " + err.Error(), false
		}
		return fmt.Sprintf("task %s %sd", args[0], cmd), false

	case "alerts":
		return a.alertsText(), false

	case "audit":
		return a.auditText(), false

	case "voice":
		if len(args) == 0 {
			return "usage: voice <phrase>", false
		}
		reply, err := a.HandleVoice(ctx, strings.Join(args, " "))
		if err != nil {
			return "error: " + err.Error(), false
		}
		return reply, false

	case "ask":
		if a.Assistant == nil {
			return "assistant is not enabled", false
		}
		if len(args) == 0 {
			return "usage: ask <text>", false
		}
		return a.Assistant.Respond(ctx, "repl", "cli", strings.Join(args, " ")), false

	default:
		return fmt.Sprintf("unknown command: %s (try 'help')", cmd), false
	}
}

func (a *Agent) statusText() string {
	var sb strings.Builder
	sb.WriteString(a.buildSummary())
	if a.Assistant != nil {
		st := a.Assistant.Stats()
		fmt.Fprintf(&sb, "Assistant: %d replies (%d rule, %d llm, %d fallback), %d chats\n",
			st.Total, st.RuleReplies, st.LLMReplies, st.Fallbacks, st.ActiveChats)
	}
	if a.Monitor.Running() {
		sb.WriteString("Monitor: running\n")
	} else {
		sb.WriteString("Monitor: stopped\n")
	}
	if a.Scheduler.Running() {
		sb.WriteString("Scheduler: running")
	} else {
		sb.WriteString("Scheduler: stopped")
	}
	return sb.String()
}

func (a *Agent) tasksText() string {
	tasks := a.Scheduler.Tasks()
	if len(tasks) == 0 {
		return "no tasks registered"
	}
	var sb strings.Builder
	for i, t := range tasks {
		if i > 0 {
			sb.WriteString("\n")
		}
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&sb, "%-24s %-9s %-14s runs=%d", t.Name, state, t.Schedule, t.RunCount)
		if !t.NextRun.IsZero() {
			fmt.Fprintf(&sb, " next=%s", t.NextRun.Format("15:04"))
		}
		if t.LastErr != "" {
			fmt.Fprintf(&sb, " err=%q", t.LastErr)
		}
	}
	return sb.String()
}

// alertsText reads the persisted history so alerts from earlier runs
// show up too. The in-memory ring is the fallback when the query
// fails.
func (a *Agent) alertsText() string {
	alerts, err := a.History.Since(time.Now().Add(-24 * time.Hour))
	if err != nil {
		a.logger.Warn("alert history query failed", "error", err)
		alerts = a.Monitor.Alerts(24 * time.Hour)
	}
	if len(alerts) == 0 {
		return "no alerts in the last 24 hours"
	}
	var sb strings.Builder
	for i, alert := range alerts {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s [%s] %s",
			alert.Time.Format("15:04:05"), alert.Severity, alert.Message)
	}
	return sb.String()
}

func (a *Agent) auditText() string {
	entries, err := a.Audit.Recent(20)
	if err != nil {
		return "error: " + err.Error()
	}
	if len(entries) == 0 {
		return "no audit entries"
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		verdict := "denied"
		if e.Allowed {
			verdict = "allowed"
		}
		fmt.Fprintf(&sb, "%s %-7s %-12s %s",
			e.CreatedAt.Format("15:04:05"), verdict, e.ActionType, e.Subject)
		if e.Reason != "" {
			fmt.Fprintf(&sb, " (%s)", e.Reason)
		}
	}
	return sb.String()
}
