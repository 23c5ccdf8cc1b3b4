// Package config – defaults.go defines the default configuration
// document and the validation helper.
package config

// DefaultDocument returns the default configuration document written on
// first run. Secrets (SMTP password, bot tokens, API keys) are expected
// in the OS keyring or environment, not here.
func DefaultDocument() map[string]any {
	return map[string]any{
		"agent": map[string]any{
			"name":     "AutoClaw",
			"data_dir": "./data",
		},
		"logging": map[string]any{
			"level":       "info",
			"format":      "text",
			"file":        "./data/autoclaw.log",
			"max_size_mb": 10,
			"max_backups": 3,
		},
		"database": map[string]any{
			"path": "./data/autoclaw.db",
		},
		"monitor": map[string]any{
			"enabled":  true,
			"interval": "30s",
			"thresholds": map[string]any{
				"cpu_percent":    80.0,
				"memory_percent": 85.0,
				"disk_percent":   90.0,
				"temperature_c":  80.0,
			},
			"max_alerts": 1000,
		},
		"scheduler": map[string]any{
			"enabled":              true,
			"tick":                 "60s",
			"cooldown":             "5m",
			"task_timeout":         "5m",
			"max_concurrent_tasks": 3,
		},
		"safety": map[string]any{
			"confirm_dangerous_actions": true,
			"max_file_size":             104857600,
			"allowed_file_types": []any{
				".txt", ".pdf", ".doc", ".docx", ".jpg", ".png", ".gif", ".mp4", ".mp3",
			},
			"blocked_commands": []any{
				"rm -rf /", "mkfs", "dd if=", "shutdown", "reboot",
			},
			"quarantine_dir": "./quarantine",
			"rate_limit":     30,
		},
		"email": map[string]any{
			"enabled":     false,
			"smtp_server": "",
			"smtp_port":   587,
			"username":    "",
			"from":        "",
			"recipients":  []any{},
			"inbox_dir":   "",
		},
		"telegram": map[string]any{
			"enabled": false,
			"chats":   []any{},
		},
		"whatsapp": map[string]any{
			"enabled":     false,
			"session_dir": "./data/whatsapp",
		},
		"discord": map[string]any{
			"enabled":  false,
			"channels": []any{},
		},
		"assistant": map[string]any{
			"enabled":          false,
			"provider":         "openai",
			"base_url":         "",
			"model":            "gpt-4o-mini",
			"max_input_length": 4096,
			"rate_limit":       30,
			"history_limit":    200,
			"history_file":     "./data/conversations.json",
		},
		"voice": map[string]any{
			"enabled":       false,
			"tts_provider":  "auto",
			"tts_voice":     "nova",
			"tts_model":     "tts-1",
			"stt_model":     "whisper-1",
			"commands_file": "./data/voice_commands.json",
		},
		"templates": map[string]any{
			"path": "./data/templates.yaml",
		},
	}
}

// ValidationResult reports config problems. Errors make the config
// unusable for the relevant feature; warnings do not.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks the sections the agent depends on. Disabled features
// are not required to be configured.
func (s *Store) Validate() ValidationResult {
	var res ValidationResult

	if s.GetString("agent.name", "") == "" {
		res.Warnings = append(res.Warnings, "agent.name is empty")
	}

	if s.GetBool("email.enabled", false) {
		if s.GetString("email.smtp_server", "") == "" {
			res.Errors = append(res.Errors, "email.enabled is true but email.smtp_server is empty")
		}
		if s.GetInt("email.smtp_port", 0) <= 0 {
			res.Errors = append(res.Errors, "email.smtp_port must be a positive integer")
		}
		if s.GetString("email.username", "") == "" {
			res.Errors = append(res.Errors, "email.enabled is true but email.username is empty")
		}
		if len(s.GetStringSlice("email.recipients")) == 0 {
			res.Warnings = append(res.Warnings, "email.recipients is empty")
		}
	}

	if s.GetBool("telegram.enabled", false) && len(s.GetStringSlice("telegram.chats")) == 0 {
		res.Warnings = append(res.Warnings, "telegram.enabled is true but telegram.chats is empty")
	}

	if size := s.GetFloat("safety.max_file_size", 0); size <= 0 {
		res.Errors = append(res.Errors, "safety.max_file_size must be positive")
	} else if size > 1<<30 {
		res.Warnings = append(res.Warnings, "safety.max_file_size is larger than 1GB")
	}
	if len(s.GetStringSlice("safety.allowed_file_types")) == 0 {
		res.Errors = append(res.Errors, "safety.allowed_file_types must not be empty")
	}

	if s.GetDuration("monitor.interval", 0) <= 0 {
		res.Errors = append(res.Errors, "monitor.interval must be a valid duration")
	}
	if s.GetDuration("scheduler.tick", 0) <= 0 {
		res.Errors = append(res.Errors, "scheduler.tick must be a valid duration")
	}
	if s.GetInt("scheduler.max_concurrent_tasks", 0) <= 0 {
		res.Errors = append(res.Errors, "scheduler.max_concurrent_tasks must be at least 1")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
