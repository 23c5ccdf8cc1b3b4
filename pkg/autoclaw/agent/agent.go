// Package agent assembles the AutoClaw components and runs them as one
// process: monitor loop, task scheduler, channel listeners, and the
// auto-reply pipeline.
package agent

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"autoclaw/pkg/autoclaw/assistant"
	"autoclaw/pkg/autoclaw/channels"
	"autoclaw/pkg/autoclaw/channels/discord"
	"autoclaw/pkg/autoclaw/channels/email"
	"autoclaw/pkg/autoclaw/channels/telegram"
	"autoclaw/pkg/autoclaw/channels/whatsapp"
	"autoclaw/pkg/autoclaw/config"
	"autoclaw/pkg/autoclaw/files"
	"autoclaw/pkg/autoclaw/logging"
	"autoclaw/pkg/autoclaw/monitor"
	"autoclaw/pkg/autoclaw/network"
	"autoclaw/pkg/autoclaw/safety"
	"autoclaw/pkg/autoclaw/scheduler"
	"autoclaw/pkg/autoclaw/secrets"
	"autoclaw/pkg/autoclaw/storage"
	"autoclaw/pkg/autoclaw/sysexec"
	"autoclaw/pkg/autoclaw/templates"
	"autoclaw/pkg/autoclaw/voice"
)

// Agent owns every subsystem and their shared lifecycle.
type Agent struct {
	Config    *config.Store
	Gate      *safety.Gate
	Audit     *safety.AuditLog
	Monitor   *monitor.Monitor
	History   *monitor.History
	Scheduler *scheduler.Scheduler
	Channels  *channels.Manager
	Assistant *assistant.Assistant
	Templates *templates.Store
	Files     *files.Manager
	Network   *network.Client
	Exec      *sysexec.Executor
	Voice     *voice.Registry
	TTS       voice.Provider
	STT       *voice.Transcriber

	logger   *slog.Logger
	logClose io.Closer
	db       *sql.DB

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once
}

// New loads the configuration at configPath and builds all components.
// Nothing starts running until Start.
func New(configPath string) (*Agent, error) {
	cfg := config.New(configPath)
	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, logClose := logging.New(logging.Options{
		Level:      cfg.GetString("logging.level", "info"),
		Format:     cfg.GetString("logging.format", "text"),
		File:       cfg.GetString("logging.file", ""),
		MaxSizeMB:  cfg.GetInt("logging.max_size_mb", 10),
		MaxBackups: cfg.GetInt("logging.max_backups", 3),
	})

	dbPath := cfg.GetString("database.path", "./data/autoclaw.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		logClose.Close()
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		logClose.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &Agent{
		Config:   cfg,
		logger:   logger.With("component", "agent"),
		logClose: logClose,
		db:       db,
	}

	a.Audit = safety.NewAuditLog(db, logger)
	a.Gate = safety.NewGate(safetyConfig(cfg), a.Audit, logger)
	a.History = monitor.NewHistory(db)
	a.Monitor = monitor.New(monitorConfig(cfg), nil, a.History, logger)
	a.Scheduler = scheduler.New(schedulerConfig(cfg), scheduler.NewSQLiteStorage(db), logger)
	a.Channels = channels.NewManager(logger)
	a.Templates = templates.NewStore(cfg.GetString("templates.path", "./data/templates.yaml"), logger)
	a.Files = files.NewManager(a.Gate, logger)
	a.Network = network.NewClient(nil, logger)
	a.Exec = sysexec.NewExecutor(sysexec.DefaultConfig(), a.Gate, logger)
	a.Voice = voice.NewRegistry(logger)

	if err := a.Templates.Load(); err != nil {
		a.logger.Warn("template load failed", "error", err)
	}
	if path := cfg.GetString("voice.commands_file", ""); path != "" {
		if err := a.Voice.LoadCustom(path); err != nil {
			a.logger.Warn("voice command load failed", "error", err)
		}
	}

	a.buildAssistant()
	if err := a.registerChannels(); err != nil {
		db.Close()
		logClose.Close()
		return nil, err
	}
	if err := a.registerDefaultTasks(); err != nil {
		db.Close()
		logClose.Close()
		return nil, err
	}
	a.buildVoice()
	return a, nil
}

// Logger returns the agent's base logger.
func (a *Agent) Logger() *slog.Logger { return a.logger }

func safetyConfig(cfg *config.Store) safety.Config {
	out := safety.DefaultConfig()
	out.ConfirmDangerousActions = cfg.GetBool("safety.confirm_dangerous_actions", true)
	if size := cfg.GetInt("safety.max_file_size", 0); size > 0 {
		out.MaxFileSize = int64(size)
	}
	if types := cfg.GetStringSlice("safety.allowed_file_types"); len(types) > 0 {
		out.AllowedFileTypes = types
	}
	if blocked := cfg.GetStringSlice("safety.blocked_commands"); len(blocked) > 0 {
		out.BlockedCommands = blocked
	}
	out.QuarantineDir = cfg.GetString("safety.quarantine_dir", out.QuarantineDir)
	out.RatePerMinute = cfg.GetInt("safety.rate_limit", out.RatePerMinute)
	return out
}

func monitorConfig(cfg *config.Store) monitor.Config {
	out := monitor.DefaultConfig()
	out.Interval = cfg.GetDuration("monitor.interval", out.Interval)
	out.MaxAlerts = cfg.GetInt("monitor.max_alerts", out.MaxAlerts)
	out.Thresholds.CPU = cfg.GetFloat("monitor.thresholds.cpu_percent", out.Thresholds.CPU)
	out.Thresholds.Memory = cfg.GetFloat("monitor.thresholds.memory_percent", out.Thresholds.Memory)
	out.Thresholds.Disk = cfg.GetFloat("monitor.thresholds.disk_percent", out.Thresholds.Disk)
	out.Thresholds.Temperature = cfg.GetFloat("monitor.thresholds.temperature_c", out.Thresholds.Temperature)
	return out
}

func schedulerConfig(cfg *config.Store) scheduler.Config {
	out := scheduler.DefaultConfig()
	out.TickInterval = cfg.GetDuration("scheduler.tick", out.TickInterval)
	out.Cooldown = cfg.GetDuration("scheduler.cooldown", out.Cooldown)
	out.TaskTimeout = cfg.GetDuration("scheduler.task_timeout", out.TaskTimeout)
	out.MaxConcurrentTasks = cfg.GetInt("scheduler.max_concurrent_tasks", out.MaxConcurrentTasks)
	return out
}

func (a *Agent) buildAssistant() {
	if !a.Config.GetBool("assistant.enabled", false) {
		return
	}

	baseURL := a.Config.GetString("assistant.base_url", "")
	apiKey := secrets.Resolve(secrets.KeyOpenAIAPIKey)
	if a.Config.GetString("assistant.provider", "") == "anthropic" {
		apiKey = secrets.Resolve(secrets.KeyAnthropicKey)
	}

	llm := assistant.NewLLMClient(assistant.LLMConfig{
		BaseURL: baseURL,
		Model:   a.Config.GetString("assistant.model", "gpt-4o-mini"),
		APIKey:  apiKey,
	}, a.logger)

	acfg := assistant.DefaultConfig()
	if n := a.Config.GetInt("assistant.max_input_length", 0); n > 0 {
		acfg.MaxInputLen = n
	}
	if n := a.Config.GetInt("assistant.history_limit", 0); n > 0 {
		acfg.HistoryLimit = n
	}
	acfg.RatePerMinute = a.Config.GetInt("assistant.rate_limit", acfg.RatePerMinute)
	a.Assistant = assistant.New(acfg, llm, a.logger)

	if path := a.Config.GetString("assistant.history_file", ""); path != "" {
		if err := a.Assistant.LoadHistory(path); err != nil {
			a.logger.Warn("conversation history load failed", "error", err)
		}
	}
}

func (a *Agent) registerChannels() error {
	if a.Config.GetBool("email.enabled", false) {
		ch := email.New(email.Config{
			Server:   a.Config.GetString("email.smtp_server", ""),
			Port:     a.Config.GetInt("email.smtp_port", 587),
			Username: a.Config.GetString("email.username", ""),
			Password: secrets.Resolve(secrets.KeySMTPPassword),
			From:     a.Config.GetString("email.from", ""),
			Maildir:  a.Config.GetString("email.inbox_dir", ""),
		}, a.logger)
		if err := a.Channels.Register(ch); err != nil {
			return fmt.Errorf("register email channel: %w", err)
		}
	}

	if a.Config.GetBool("telegram.enabled", false) {
		cfg := telegram.DefaultConfig()
		cfg.Token = secrets.Resolve(secrets.KeyTelegramToken)
		for _, id := range a.Config.GetStringSlice("telegram.chats") {
			if chatID, err := parseChatID(id); err == nil {
				cfg.AllowedChats = append(cfg.AllowedChats, chatID)
			}
		}
		if err := a.Channels.Register(telegram.New(cfg, a.logger)); err != nil {
			return fmt.Errorf("register telegram channel: %w", err)
		}
	}

	if a.Config.GetBool("whatsapp.enabled", false) {
		cfg := whatsapp.DefaultConfig()
		cfg.SessionDir = a.Config.GetString("whatsapp.session_dir", cfg.SessionDir)
		if err := a.Channels.Register(whatsapp.New(cfg, a.logger)); err != nil {
			return fmt.Errorf("register whatsapp channel: %w", err)
		}
	}

	if a.Config.GetBool("discord.enabled", false) {
		cfg := discord.Config{
			Token:           secrets.Resolve(secrets.KeyDiscordToken),
			AllowedChannels: a.Config.GetStringSlice("discord.channels"),
		}
		if err := a.Channels.Register(discord.New(cfg, a.logger)); err != nil {
			return fmt.Errorf("register discord channel: %w", err)
		}
	}
	return nil
}

// Start brings up the monitor, scheduler, channels, and background
// loops. It returns once everything is running.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("agent already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.Channels.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start channels: %w", err)
	}

	if a.Config.GetBool("monitor.enabled", true) {
		if err := a.Monitor.Start(runCtx); err != nil {
			a.logger.Warn("monitor start failed", "error", err)
		}
	}

	if a.Config.GetBool("scheduler.enabled", true) {
		if err := a.Scheduler.Restore(); err != nil {
			a.logger.Warn("task restore failed", "error", err)
		}
		if err := a.Scheduler.Start(runCtx); err != nil {
			a.logger.Warn("scheduler start failed", "error", err)
		}
	}

	a.Monitor.OnAlert(a.notifyAlert)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.replyLoop(runCtx)
	}()

	a.started = true
	a.logger.Info("agent started",
		"channels", a.Channels.Names(),
		"tasks", len(a.Scheduler.Tasks()))
	return nil
}

// Stop shuts everything down and closes the database.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return
	}

	a.cancel()
	a.Scheduler.Stop()
	a.Monitor.Stop()
	a.Channels.Stop()
	a.wg.Wait()

	if path := a.Config.GetString("voice.commands_file", ""); path != "" {
		if err := a.Voice.SaveCustom(path); err != nil {
			a.logger.Warn("voice command save failed", "error", err)
		}
	}
	if a.Assistant != nil {
		if path := a.Config.GetString("assistant.history_file", ""); path != "" {
			if err := a.Assistant.SaveHistory(path); err != nil {
				a.logger.Warn("conversation history save failed", "error", err)
			}
		}
	}

	a.closeResources()
	a.started = false
	a.logger.Info("agent stopped")
}

// Close releases the database and log file. Safe to call on an agent
// that was never started; Stop calls it for started ones.
func (a *Agent) Close() {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if started {
		a.Stop()
		return
	}
	a.closeResources()
}

func (a *Agent) closeResources() {
	a.closeOnce.Do(func() {
		a.db.Close()
		a.logClose.Close()
	})
}

func parseChatID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// notifyAlert forwards critical monitor alerts to the configured email
// recipients. Sends happen off the monitor's tick path so a slow SMTP
// server cannot stall sampling.
func (a *Agent) notifyAlert(alert monitor.Alert) {
	if alert.Severity != "critical" {
		return
	}
	recipients := a.Config.GetStringSlice("email.recipients")
	if len(recipients) == 0 {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		msg := &channels.OutgoingMessage{
			Subject: fmt.Sprintf("AutoClaw alert: %s", alert.Type),
			Content: alert.Message,
		}
		for _, to := range recipients {
			if err := a.Channels.Send(ctx, "email", to, msg); err != nil {
				a.logger.Warn("alert notification failed", "to", to, "error", err)
				return
			}
		}
	}()
}
