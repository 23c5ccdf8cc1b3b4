package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"autoclaw/pkg/autoclaw/channels"
	"autoclaw/pkg/autoclaw/scheduler"
)

func (a *Agent) registerDefaultTasks() error {
	tasks := []scheduler.Task{
		{
			Name:        "system_health_check",
			Description: "Sample system metrics and raise threshold alerts",
			Schedule:    "*/5 * * * *",
			Enabled:     true,
			Cooldown:    5 * time.Minute,
			Action: func(ctx context.Context) error {
				a.Monitor.Tick(ctx)
				return nil
			},
		},
		{
			Name:        "cleanup_temp",
			Description: "Remove temp files older than 30 days",
			Schedule:    "0 3 * * *",
			Enabled:     true,
			Cooldown:    24 * time.Hour,
			Action: func(ctx context.Context) error {
				removed, err := a.Files.CleanupOldFiles(os.TempDir(), 30*24*time.Hour)
				if err != nil {
					return err
				}
				a.logger.Info("temp cleanup finished", "removed", removed)
				return nil
			},
		},
		{
			Name:        "prune_history",
			Description: "Drop alert history and audit entries older than 30 days",
			Schedule:    "0 4 * * *",
			Enabled:     true,
			Cooldown:    24 * time.Hour,
			Action: func(ctx context.Context) error {
				alerts, err := a.History.Prune(30 * 24 * time.Hour)
				if err != nil {
					return err
				}
				audits, err := a.Audit.Prune(30 * 24 * time.Hour)
				if err != nil {
					return err
				}
				a.logger.Info("history pruned", "alerts", alerts, "audit_entries", audits)
				return nil
			},
		},
		{
			Name:        "daily_summary",
			Description: "Email a daily status summary",
			Schedule:    "0 8 * * *",
			Enabled:     true,
			Cooldown:    24 * time.Hour,
			Action:      a.sendDailySummary,
		},
	}

	for _, t := range tasks {
		if err := a.Scheduler.Register(t); err != nil {
			return fmt.Errorf("register task %s: %w", t.Name, err)
		}
	}
	return nil
}

func (a *Agent) sendDailySummary(ctx context.Context) error {
	recipients := a.Config.GetStringSlice("email.recipients")
	if len(recipients) == 0 {
		a.logger.Debug("daily summary skipped, no recipients")
		return nil
	}

	body := a.buildSummary()
	msg := &channels.OutgoingMessage{
		Subject: "AutoClaw daily summary " + time.Now().Format("2006-01-02"),
		Content: body,
	}
	for _, to := range recipients {
		if err := a.Channels.Send(ctx, "email", to, msg); err != nil {
			return fmt.Errorf("send summary to %s: %w", to, err)
		}
	}
	return nil
}

// buildSummary renders the status of every subsystem as plain text.
func (a *Agent) buildSummary() string {
	var sb strings.Builder

	if snap, ok := a.Monitor.Last(); ok {
		fmt.Fprintf(&sb, "System: CPU %.1f%%, memory %.1f%%, disk %.1f%%",
			snap.CPUPercent, snap.MemoryPercent, snap.DiskPercent)
		if snap.HasTemp {
			fmt.Fprintf(&sb, ", temperature %.1fC", snap.Temperature)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("System: no sample yet\n")
	}

	alerts := a.Monitor.Alerts(24 * time.Hour)
	fmt.Fprintf(&sb, "Alerts (24h): %d\n", len(alerts))
	for _, alert := range alerts {
		fmt.Fprintf(&sb, "  [%s] %s\n", alert.Severity, alert.Message)
	}

	tasks := a.Scheduler.Tasks()
	fmt.Fprintf(&sb, "Tasks: %d\n", len(tasks))
	for _, t := range tasks {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&sb, "  %s (%s, runs %d", t.Name, state, t.RunCount)
		if t.LastErr != "" {
			fmt.Fprintf(&sb, ", last error: %s", t.LastErr)
		}
		sb.WriteString(")\n")
	}

	health := a.Channels.Health()
	fmt.Fprintf(&sb, "Channels: %d\n", len(health))
	for name, h := range health {
		state := "disconnected"
		if h.Connected {
			state = "connected"
		}
		fmt.Fprintf(&sb, "  %s: %s\n", name, state)
	}
	return sb.String()
}
