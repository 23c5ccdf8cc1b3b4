package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Handler executes a matched voice command and returns the spoken
// reply.
type Handler func(ctx context.Context) (string, error)

// Command describes a registered voice command.
type Command struct {
	Phrase      string `json:"phrase"`
	Description string `json:"description"`
	// Response is set for custom commands that answer with fixed text.
	Response string `json:"response,omitempty"`
}

// Registry maps spoken phrases to actions. Matching is
// case-insensitive substring matching over the transcript, longest
// phrase first.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	commands map[string]Command
	handlers map[string]Handler
}

// NewRegistry creates an empty command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger.With("component", "voice_commands"),
		commands: make(map[string]Command),
		handlers: make(map[string]Handler),
	}
}

// Register adds a command with an action handler.
func (r *Registry) Register(phrase, description string, handler Handler) error {
	phrase = normalize(phrase)
	if phrase == "" {
		return fmt.Errorf("empty command phrase")
	}
	if handler == nil {
		return fmt.Errorf("command %q has no handler", phrase)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[phrase]; exists {
		return fmt.Errorf("command %q already registered", phrase)
	}
	r.commands[phrase] = Command{Phrase: phrase, Description: description}
	r.handlers[phrase] = handler
	return nil
}

// RegisterCustom adds a command that replies with fixed text.
func (r *Registry) RegisterCustom(phrase, response string) error {
	reply := response
	return r.registerCustom(Command{Phrase: normalize(phrase), Response: reply})
}

func (r *Registry) registerCustom(cmd Command) error {
	if cmd.Phrase == "" {
		return fmt.Errorf("empty command phrase")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Phrase]; exists {
		return fmt.Errorf("command %q already registered", cmd.Phrase)
	}
	reply := cmd.Response
	r.commands[cmd.Phrase] = cmd
	r.handlers[cmd.Phrase] = func(ctx context.Context) (string, error) {
		return reply, nil
	}
	return nil
}

// Match finds the command whose phrase appears in the transcript.
// Longer phrases win over shorter ones.
func (r *Registry) Match(transcript string) (Command, bool) {
	lower := normalize(transcript)

	r.mu.Lock()
	phrases := make([]string, 0, len(r.commands))
	for phrase := range r.commands {
		phrases = append(phrases, phrase)
	}
	r.mu.Unlock()

	sort.Slice(phrases, func(i, j int) bool { return len(phrases[i]) > len(phrases[j]) })
	for _, phrase := range phrases {
		if strings.Contains(lower, phrase) {
			r.mu.Lock()
			cmd := r.commands[phrase]
			r.mu.Unlock()
			return cmd, true
		}
	}
	return Command{}, false
}

// Execute matches the transcript and runs the command's handler.
func (r *Registry) Execute(ctx context.Context, transcript string) (string, error) {
	cmd, ok := r.Match(transcript)
	if !ok {
		return "", fmt.Errorf("no command matches %q", transcript)
	}

	r.mu.Lock()
	handler := r.handlers[cmd.Phrase]
	r.mu.Unlock()

	r.logger.Info("voice command matched", "phrase", cmd.Phrase)
	return handler(ctx)
}

// Commands lists registered commands sorted by phrase.
func (r *Registry) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phrase < out[j].Phrase })
	return out
}

// SaveCustom writes custom (fixed-response) commands to a JSON file.
func (r *Registry) SaveCustom(path string) error {
	r.mu.Lock()
	var custom []Command
	for _, cmd := range r.commands {
		if cmd.Response != "" {
			custom = append(custom, cmd)
		}
	}
	r.mu.Unlock()
	sort.Slice(custom, func(i, j int) bool { return custom[i].Phrase < custom[j].Phrase })

	data, err := json.MarshalIndent(custom, "", "  ")
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create commands directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write commands file: %w", err)
	}
	return nil
}

// LoadCustom reads custom commands from a JSON file. Missing file is
// not an error.
func (r *Registry) LoadCustom(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read commands file: %w", err)
	}

	var custom []Command
	if err := json.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("parse commands file: %w", err)
	}
	for _, cmd := range custom {
		if err := r.registerCustom(cmd); err != nil {
			r.logger.Warn("skipping command", "phrase", cmd.Phrase, "error", err)
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
