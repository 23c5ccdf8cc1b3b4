package email

import (
	"context"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autoclaw/pkg/autoclaw/channels"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	msg  []byte
}

func newTestChannel(t *testing.T) (*Channel, *[]capturedMail) {
	t.Helper()
	ch := New(Config{
		Server:        "smtp.example.com",
		Port:          587,
		Username:      "agent@example.com",
		Password:      "secret",
		BulkPerMinute: 6000,
	}, nil)

	var sent []capturedMail
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent = append(sent, capturedMail{addr: addr, from: from, to: to, msg: msg})
		return nil
	}
	return ch, &sent
}

func TestSendBuildsHeaders(t *testing.T) {
	ch, sent := newTestChannel(t)

	err := ch.Send(context.Background(), "user@example.com", &channels.OutgoingMessage{
		Subject: "Status",
		Content: "all good",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("captured %d mails, want 1", len(*sent))
	}

	mail := (*sent)[0]
	if mail.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", mail.addr)
	}
	if mail.from != "agent@example.com" {
		t.Errorf("from = %q", mail.from)
	}
	body := string(mail.msg)
	for _, want := range []string{"To: user@example.com", "Subject: Status", "all good"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q:\n%s", want, body)
		}
	}
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	ch, _ := newTestChannel(t)

	if err := ch.Send(context.Background(), "not-an-address", &channels.OutgoingMessage{}); err == nil {
		t.Error("invalid address should be rejected")
	}
}

func TestSendWithAttachment(t *testing.T) {
	ch, sent := newTestChannel(t)

	err := ch.Send(context.Background(), "user@example.com", &channels.OutgoingMessage{
		Subject: "Report",
		Content: "see attached",
		Attachment: &channels.Attachment{
			Data:     []byte("report body"),
			Filename: "report.txt",
			MimeType: "text/plain",
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := string((*sent)[0].msg)
	for _, want := range []string{"multipart/mixed", `filename="report.txt"`, "base64"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendBulkPartialFailure(t *testing.T) {
	ch, _ := newTestChannel(t)

	var calls int
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if to[0] == "bad@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}

	result, err := ch.SendBulk(context.Background(),
		[]string{"a@example.com", "bad@example.com", "b@example.com"},
		&channels.OutgoingMessage{Subject: "hi"})
	if err != nil {
		t.Fatalf("SendBulk: %v", err)
	}
	if result.Sent != 2 {
		t.Errorf("Sent = %d, want 2", result.Sent)
	}
	if _, ok := result.Failed["bad@example.com"]; !ok {
		t.Errorf("Failed = %v, want entry for bad@example.com", result.Failed)
	}
	if calls != 3 {
		t.Errorf("sendMail called %d times, want 3", calls)
	}
}

func TestMaildirPolling(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "new"), 0o755); err != nil {
		t.Fatal(err)
	}

	raw := "From: alice@example.com\r\nSubject: question\r\n\r\nWhat time is the meeting?\r\n"
	if err := os.WriteFile(filepath.Join(dir, "new", "msg1"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	ch := New(Config{
		Server:       "smtp.example.com",
		Username:     "agent@example.com",
		Maildir:      dir,
		PollInterval: 10 * time.Millisecond,
	}, nil)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer ch.Disconnect()

	select {
	case msg := <-ch.Receive():
		if msg.From != "alice@example.com" {
			t.Errorf("From = %q", msg.From)
		}
		if msg.Content != "What time is the meeting?" {
			t.Errorf("Content = %q", msg.Content)
		}
		if subject := msg.Metadata["subject"]; subject != "question" {
			t.Errorf("subject = %v", subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received from maildir")
	}

	// The message moved to cur/ and must not be emitted again.
	if _, err := os.Stat(filepath.Join(dir, "cur", "msg1")); err != nil {
		t.Errorf("message not moved to cur/: %v", err)
	}
	select {
	case msg := <-ch.Receive():
		t.Errorf("duplicate message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectRequiresConfig(t *testing.T) {
	ch := New(Config{}, nil)
	if err := ch.Connect(context.Background()); err == nil {
		t.Error("empty config should fail to connect")
	}
}
