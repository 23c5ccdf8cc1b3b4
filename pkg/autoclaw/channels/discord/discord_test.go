package discord

import (
	"context"
	"strings"
	"testing"
)

func TestSplitMessageShort(t *testing.T) {
	chunks := splitMessage("hello", maxMessageLen)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitMessageLong(t *testing.T) {
	content := strings.Repeat("a", 4500)
	chunks := splitMessage(content, maxMessageLen)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	var total int
	for _, chunk := range chunks {
		if len(chunk) > maxMessageLen {
			t.Errorf("chunk length %d exceeds limit", len(chunk))
		}
		total += len(chunk)
	}
	if total != 4500 {
		t.Errorf("reassembled length %d, want 4500", total)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	content := strings.Repeat("line of text\n", 200)
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if len(chunk) > maxMessageLen {
			t.Errorf("chunk length %d exceeds limit", len(chunk))
		}
	}
}

func TestIDAllowed(t *testing.T) {
	if !idAllowed(nil, "anything") {
		t.Error("empty allowlist should allow all")
	}
	if !idAllowed([]string{"1", "2"}, "2") {
		t.Error("listed id should be allowed")
	}
	if idAllowed([]string{"1"}, "3") {
		t.Error("unlisted id should be denied")
	}
}

func TestConnectRequiresToken(t *testing.T) {
	d := New(Config{}, nil)
	if err := d.Connect(context.Background()); err == nil {
		t.Error("connect without token should fail")
	}
}

func TestSendRequiresConnection(t *testing.T) {
	d := New(Config{Token: "x"}, nil)
	if err := d.Send(context.Background(), "123", nil); err == nil {
		t.Error("send without connection should fail")
	}
}
