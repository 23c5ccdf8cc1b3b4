package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Completer is the LLM surface the assistant needs. *LLMClient
// implements it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, history []ConversationEntry, userMessage string) (string, error)
	Available() bool
}

// Rule is a keyword-triggered canned response, checked before the LLM.
type Rule struct {
	// Name identifies the rule in logs.
	Name string
	// Keywords trigger the rule when any appears in the message.
	Keywords []string
	// Sentiment additionally restricts the rule ("positive",
	// "negative", "neutral"; empty matches all).
	Sentiment string
	// Platform restricts the rule to one channel (empty matches all).
	Platform string
	// Response is the canned reply.
	Response string
}

// Config configures the assistant.
type Config struct {
	// SystemPrompt frames every LLM conversation.
	SystemPrompt string
	// HistoryLimit bounds the per-chat conversation memory.
	HistoryLimit int
	// MaxInputLen rejects oversized inputs before they reach the LLM.
	MaxInputLen int
	// RatePerMinute bounds messages per chat. Zero disables the limit.
	RatePerMinute int
}

// DefaultConfig returns assistant defaults.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:  "You are a helpful desktop automation assistant. Be concise and helpful.",
		HistoryLimit:  10,
		MaxInputLen:   4000,
		RatePerMinute: 30,
	}
}

// Stats counts replies by origin.
type Stats struct {
	Total       int64 `json:"total"`
	RuleReplies int64 `json:"rule_replies"`
	LLMReplies  int64 `json:"llm_replies"`
	Fallbacks   int64 `json:"fallbacks"`
	RateLimited int64 `json:"rate_limited"`
	ActiveChats int   `json:"active_chats"`
}

// Assistant routes messages through rules, then the LLM, then
// fallbacks.
type Assistant struct {
	cfg    Config
	llm    Completer
	logger *slog.Logger

	mu       sync.Mutex
	rules    []Rule
	history  map[string][]ConversationEntry // keyed by chat ID
	limiters map[string]*rate.Limiter       // keyed by chat ID
	stats    Stats
}

// New creates an assistant. llm may be nil; replies then come from
// rules and fallbacks only.
func New(cfg Config, llm Completer, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.MaxInputLen <= 0 {
		cfg.MaxInputLen = 4000
	}
	return &Assistant{
		cfg:      cfg,
		llm:      llm,
		logger:   logger.With("component", "assistant"),
		history:  make(map[string][]ConversationEntry),
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddRule registers a canned response rule.
func (a *Assistant) AddRule(rule Rule) {
	a.mu.Lock()
	a.rules = append(a.rules, rule)
	a.mu.Unlock()
}

// AddFAQ registers one rule per question/answer pair, matching on the
// question text.
func (a *Assistant) AddFAQ(pairs map[string]string) {
	for question, answer := range pairs {
		a.AddRule(Rule{
			Name:     "faq: " + question,
			Keywords: []string{question},
			Response: answer,
		})
	}
}

// Respond generates a reply for a message from the given chat on the
// given platform.
func (a *Assistant) Respond(ctx context.Context, chatID, platform, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	if len(message) > a.cfg.MaxInputLen {
		a.logger.Warn("input too long, refusing", "chat", chatID, "len", len(message))
		return "That message is too long for me to process. Could you shorten it?"
	}
	if !a.allow(chatID) {
		a.logger.Warn("chat rate limited", "chat", chatID)
		a.bump(func(s *Stats) { s.RateLimited++ })
		return "You're sending messages too quickly. Please give me a moment."
	}
	a.bump(func(s *Stats) { s.Total++ })

	a.remember(chatID, ConversationEntry{
		Role: "user", Content: message, Platform: platform, Timestamp: time.Now(),
	})

	if reply, ok := a.matchRule(platform, message); ok {
		a.bump(func(s *Stats) { s.RuleReplies++ })
		return reply
	}

	if a.llm != nil && a.llm.Available() {
		history := a.History(chatID, a.cfg.HistoryLimit)
		// The latest user turn is passed separately.
		if n := len(history); n > 0 && history[n-1].Content == message {
			history = history[:n-1]
		}
		reply, err := a.llm.Complete(ctx, a.cfg.SystemPrompt, history, message)
		if err == nil {
			a.bump(func(s *Stats) { s.LLMReplies++ })
			a.remember(chatID, ConversationEntry{
				Role: "assistant", Content: reply, Timestamp: time.Now(),
			})
			return reply
		}
		a.logger.Error("llm completion failed, falling back", "error", err)
	}

	a.bump(func(s *Stats) { s.Fallbacks++ })
	reply := fallbackResponse(message)
	a.remember(chatID, ConversationEntry{
		Role: "assistant", Content: reply, Timestamp: time.Now(),
	})
	return reply
}

func (a *Assistant) matchRule(platform, message string) (string, bool) {
	lower := strings.ToLower(message)

	a.mu.Lock()
	rules := make([]Rule, len(a.rules))
	copy(rules, a.rules)
	a.mu.Unlock()

	for _, rule := range rules {
		if rule.Platform != "" && rule.Platform != platform {
			continue
		}
		matched := len(rule.Keywords) == 0
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if rule.Sentiment != "" {
			if AnalyzeSentiment(message).Sentiment != rule.Sentiment {
				continue
			}
		}
		a.logger.Debug("rule matched", "rule", rule.Name)
		return rule.Response, true
	}
	return "", false
}

func (a *Assistant) remember(chatID string, entry ConversationEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := append(a.history[chatID], entry)
	// Keep twice the prompt window so both sides of each turn survive.
	if limit := a.cfg.HistoryLimit * 2; len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	a.history[chatID] = entries
}

// History returns up to limit most recent entries for a chat.
func (a *Assistant) History(chatID string, limit int) []ConversationEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.history[chatID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]ConversationEntry, len(entries))
	copy(out, entries)
	return out
}

// ClearHistory drops a chat's conversation memory.
func (a *Assistant) ClearHistory(chatID string) {
	a.mu.Lock()
	delete(a.history, chatID)
	a.mu.Unlock()
}

// allow checks the chat's token bucket.
func (a *Assistant) allow(chatID string) bool {
	if a.cfg.RatePerMinute <= 0 {
		return true
	}
	a.mu.Lock()
	lim, ok := a.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(a.cfg.RatePerMinute)/60.0), a.cfg.RatePerMinute)
		a.limiters[chatID] = lim
	}
	a.mu.Unlock()
	return lim.Allow()
}

func (a *Assistant) bump(fn func(*Stats)) {
	a.mu.Lock()
	fn(&a.stats)
	a.mu.Unlock()
}

// Stats returns reply counters since the assistant was created.
func (a *Assistant) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.stats
	out.ActiveChats = len(a.history)
	return out
}

// SaveHistory writes every chat's conversation memory to a JSON file.
func (a *Assistant) SaveHistory(path string) error {
	a.mu.Lock()
	snapshot := make(map[string][]ConversationEntry, len(a.history))
	for chatID, entries := range a.history {
		out := make([]ConversationEntry, len(entries))
		copy(out, entries)
		snapshot[chatID] = out
	}
	a.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return nil
}

// LoadHistory restores conversation memory saved by SaveHistory.
// Missing file is not an error.
func (a *Assistant) LoadHistory(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read history file: %w", err)
	}

	var saved map[string][]ConversationEntry
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("parse history file: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	limit := a.cfg.HistoryLimit * 2
	for chatID, entries := range saved {
		if len(entries) > limit {
			entries = entries[len(entries)-limit:]
		}
		a.history[chatID] = entries
	}
	return nil
}

var fallbackPool = []string{
	"I understand your message. How can I help you further?",
	"Thank you for your message. I'm here to assist you.",
	"I received your message. What would you like to know?",
	"Thanks for reaching out! How can I be of service?",
	"I'm here to help. What do you need assistance with?",
}

// fallbackResponse produces a canned reply when no LLM is available.
func fallbackResponse(message string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "hello", "hi ", "hey"):
		return "Hello! How can I help you today?"
	case containsAny(lower, "thank", "thanks"):
		return "You're welcome! Is there anything else I can help you with?"
	case containsAny(lower, "help", "support"):
		return "I'm here to help! What do you need assistance with?"
	case containsAny(lower, "bye", "goodbye", "see you"):
		return "Goodbye! Have a great day!"
	}
	return fallbackPool[len(message)%len(fallbackPool)]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
