package assistant

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// fakeLLM returns a fixed reply or error.
type fakeLLM struct {
	reply     string
	err       error
	available bool
	calls     int
	lastMsg   string
}

func (f *fakeLLM) Complete(ctx context.Context, system string, history []ConversationEntry, msg string) (string, error) {
	f.calls++
	f.lastMsg = msg
	return f.reply, f.err
}

func (f *fakeLLM) Available() bool { return f.available }

func TestRespondUsesLLM(t *testing.T) {
	llm := &fakeLLM{reply: "from the model", available: true}
	a := New(DefaultConfig(), llm, nil)

	got := a.Respond(context.Background(), "chat1", "telegram", "what's the weather?")
	if got != "from the model" {
		t.Errorf("Respond = %q", got)
	}
	if llm.calls != 1 {
		t.Errorf("llm called %d times, want 1", llm.calls)
	}
}

func TestRespondRulesBeforeLLM(t *testing.T) {
	llm := &fakeLLM{reply: "should not be used", available: true}
	a := New(DefaultConfig(), llm, nil)
	a.AddRule(Rule{
		Name:     "hours",
		Keywords: []string{"opening hours"},
		Response: "We are open 9 to 5.",
	})

	got := a.Respond(context.Background(), "chat1", "email", "What are your OPENING HOURS?")
	if got != "We are open 9 to 5." {
		t.Errorf("Respond = %q", got)
	}
	if llm.calls != 0 {
		t.Error("rule match should bypass the LLM")
	}
}

func TestRespondFallbackWhenLLMFails(t *testing.T) {
	llm := &fakeLLM{err: errors.New("api down"), available: true}
	a := New(DefaultConfig(), llm, nil)

	got := a.Respond(context.Background(), "chat1", "telegram", "hello there")
	if got != "Hello! How can I help you today?" {
		t.Errorf("Respond = %q", got)
	}
}

func TestRespondFallbackWithoutLLM(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)

	if got := a.Respond(context.Background(), "c", "cli", "thanks a lot"); !strings.Contains(got, "welcome") {
		t.Errorf("thanks reply = %q", got)
	}
	if got := a.Respond(context.Background(), "c", "cli", "xyzzy"); got == "" {
		t.Error("generic fallback should not be empty")
	}
}

func TestRespondRejectsOversizedInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInputLen = 10
	llm := &fakeLLM{available: true}
	a := New(cfg, llm, nil)

	got := a.Respond(context.Background(), "c", "cli", strings.Repeat("a", 100))
	if !strings.Contains(got, "too long") {
		t.Errorf("Respond = %q", got)
	}
	if llm.calls != 0 {
		t.Error("oversized input must not reach the LLM")
	}
}

func TestRuleSentimentFilter(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	a.AddRule(Rule{
		Name:      "complaints",
		Keywords:  []string{"order"},
		Sentiment: "negative",
		Response:  "Sorry to hear that. A human will follow up.",
	})

	if got := a.Respond(context.Background(), "c", "email", "I hate this order"); !strings.Contains(got, "Sorry") {
		t.Errorf("negative message = %q", got)
	}
	if got := a.Respond(context.Background(), "c2", "email", "I love this order"); strings.Contains(got, "Sorry") {
		t.Errorf("positive message matched complaint rule: %q", got)
	}
}

func TestRulePlatformFilter(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	a.AddRule(Rule{
		Name:     "tg only",
		Keywords: []string{"ping"},
		Platform: "telegram",
		Response: "pong",
	})

	if got := a.Respond(context.Background(), "c", "telegram", "ping"); got != "pong" {
		t.Errorf("telegram = %q", got)
	}
	if got := a.Respond(context.Background(), "c", "email", "ping"); got == "pong" {
		t.Error("email should not match a telegram-only rule")
	}
}

func TestAddFAQ(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	a.AddFAQ(map[string]string{"return policy": "Returns within 30 days."})

	got := a.Respond(context.Background(), "c", "email", "what is your return policy?")
	if got != "Returns within 30 days." {
		t.Errorf("Respond = %q", got)
	}
}

func TestHistoryBoundedPerChat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	a := New(cfg, nil, nil)

	for i := 0; i < 20; i++ {
		a.Respond(context.Background(), "chat1", "cli", "message")
	}
	if got := len(a.History("chat1", 0)); got > 6 {
		t.Errorf("history holds %d entries, want at most 6", got)
	}
	if got := len(a.History("chat2", 0)); got != 0 {
		t.Errorf("other chat has %d entries, want 0", got)
	}

	a.ClearHistory("chat1")
	if got := len(a.History("chat1", 0)); got != 0 {
		t.Errorf("history after clear: %d", got)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"this is great, I love it", "positive"},
		{"terrible, I hate it", "negative"},
		{"the sky is blue", "neutral"},
	}
	for _, tc := range cases {
		got := AnalyzeSentiment(tc.text)
		if got.Sentiment != tc.want {
			t.Errorf("AnalyzeSentiment(%q) = %q, want %q", tc.text, got.Sentiment, tc.want)
		}
		if got.Score < 0 || got.Score > 1 {
			t.Errorf("score %v out of range", got.Score)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://api.anthropic.com", "anthropic"},
		{"https://api.openai.com/v1", "openai"},
		{"http://localhost:11434/v1", "ollama"},
		{"https://my-proxy.example.com/v1", "openai"},
	}
	for _, tc := range cases {
		if got := detectProvider(tc.url); got != tc.want {
			t.Errorf("detectProvider(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestRespondRateLimited(t *testing.T) {
	llm := &fakeLLM{reply: "ok", available: true}
	cfg := DefaultConfig()
	cfg.RatePerMinute = 1
	a := New(cfg, llm, nil)

	first := a.Respond(context.Background(), "chat1", "telegram", "hello there")
	if first != "ok" {
		t.Fatalf("first Respond = %q", first)
	}
	second := a.Respond(context.Background(), "chat1", "telegram", "and again")
	if !strings.Contains(second, "too quickly") {
		t.Errorf("second Respond = %q, want rate limit message", second)
	}
	if llm.calls != 1 {
		t.Errorf("llm called %d times, want 1 (limited call must not reach it)", llm.calls)
	}

	// A different chat has its own bucket.
	other := a.Respond(context.Background(), "chat2", "telegram", "hello")
	if other != "ok" {
		t.Errorf("other chat Respond = %q", other)
	}
}

func TestHistorySaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conversations.json")

	a := New(DefaultConfig(), nil, nil)
	a.Respond(context.Background(), "chat1", "email", "hello")
	if err := a.SaveHistory(path); err != nil {
		t.Fatal(err)
	}

	restored := New(DefaultConfig(), nil, nil)
	if err := restored.LoadHistory(path); err != nil {
		t.Fatal(err)
	}
	entries := restored.History("chat1", 0)
	if len(entries) != 2 {
		t.Fatalf("restored %d entries, want 2 (user turn and reply)", len(entries))
	}
	if entries[0].Role != "user" || entries[0].Content != "hello" {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestLoadHistoryMissingFile(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	if err := a.LoadHistory(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Errorf("missing file should not be an error: %v", err)
	}
}

func TestStatsCountReplies(t *testing.T) {
	a := New(DefaultConfig(), nil, nil)
	a.AddRule(Rule{Name: "hours", Keywords: []string{"hours"}, Response: "9 to 5"})

	a.Respond(context.Background(), "chat1", "email", "your hours?")
	a.Respond(context.Background(), "chat2", "email", "random question")

	st := a.Stats()
	if st.Total != 2 {
		t.Errorf("Total = %d, want 2", st.Total)
	}
	if st.RuleReplies != 1 {
		t.Errorf("RuleReplies = %d, want 1", st.RuleReplies)
	}
	if st.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", st.Fallbacks)
	}
	if st.ActiveChats != 2 {
		t.Errorf("ActiveChats = %d, want 2", st.ActiveChats)
	}
}
