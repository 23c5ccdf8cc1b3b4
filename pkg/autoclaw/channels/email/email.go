// Package email implements the SMTP channel. Outbound mail goes
// through net/smtp with plain auth; the inbound side polls a local
// maildir so auto-reply works without an IMAP dependency.
package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"autoclaw/pkg/autoclaw/channels"
)

// Config configures the email channel.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	// From defaults to Username when empty.
	From string
	// BulkPerMinute paces bulk sends. Zero means 10 per minute.
	BulkPerMinute int
	// Maildir, when set, is polled for incoming mail.
	Maildir string
	// PollInterval for the maildir. Zero means 30 seconds.
	PollInterval time.Duration
}

// Channel is the SMTP-backed channels.Channel implementation.
type Channel struct {
	cfg      Config
	logger   *slog.Logger
	limiter  *rate.Limiter
	incoming chan *channels.IncomingMessage

	mu        sync.Mutex
	connected bool
	lastErr   string
	lastSeen  time.Time
	cancel    context.CancelFunc

	// sendMail is swapped in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates the email channel.
func New(cfg Config, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	perMinute := cfg.BulkPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Channel{
		cfg:      cfg,
		logger:   logger.With("channel", "email"),
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		incoming: make(chan *channels.IncomingMessage, 64),
		sendMail: smtp.SendMail,
	}
}

func (c *Channel) Name() string { return "email" }

// Connect validates the configuration and starts the maildir poller.
// SMTP itself is connectionless per message, so no socket is held.
func (c *Channel) Connect(ctx context.Context) error {
	if c.cfg.Server == "" || c.cfg.Username == "" {
		return fmt.Errorf("email channel requires server and username")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.connected = true
	c.cancel = cancel
	c.mu.Unlock()

	if c.cfg.Maildir != "" {
		go c.pollMaildir(ctx)
	}
	return nil
}

func (c *Channel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Health() channels.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channels.HealthStatus{
		Connected:    c.connected,
		LastError:    c.lastErr,
		LastActivity: c.lastSeen,
	}
}

func (c *Channel) Receive() <-chan *channels.IncomingMessage {
	return c.incoming
}

// Send delivers one message over SMTP.
func (c *Channel) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !strings.Contains(to, "@") {
		return fmt.Errorf("invalid email address: %s", to)
	}

	body, err := c.buildMessage(to, msg)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Server)
	addr := fmt.Sprintf("%s:%d", c.cfg.Server, c.cfg.Port)
	if err := c.sendMail(addr, auth, c.cfg.From, []string{to}, body); err != nil {
		c.setErr(err)
		return fmt.Errorf("send email to %s: %w", to, err)
	}

	c.touch()
	c.logger.Info("email sent", "to", to, "subject", msg.Subject)
	return nil
}

// SendBulk delivers the message to each recipient, pacing sends.
func (c *Channel) SendBulk(ctx context.Context, recipients []string, msg *channels.OutgoingMessage) (*channels.BulkResult, error) {
	result := &channels.BulkResult{Failed: make(map[string]string)}
	for _, to := range recipients {
		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}
		if err := c.Send(ctx, to, msg); err != nil {
			result.Failed[to] = err.Error()
			continue
		}
		result.Sent++
	}
	c.logger.Info("bulk email finished", "sent", result.Sent, "failed", len(result.Failed))
	return result, nil
}

// buildMessage assembles the RFC 5322 payload, as multipart when an
// attachment is present.
func (c *Channel) buildMessage(to string, msg *channels.OutgoingMessage) ([]byte, error) {
	subject := mime.QEncoding.Encode("utf-8", msg.Subject)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))

	if msg.Attachment == nil {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Content)
		b.WriteString("\r\n")
		return []byte(b.String()), nil
	}

	data := msg.Attachment.Data
	if len(data) == 0 && msg.Attachment.Path != "" {
		var err error
		data, err = os.ReadFile(msg.Attachment.Path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
	}
	filename := msg.Attachment.Filename
	if filename == "" {
		filename = filepath.Base(msg.Attachment.Path)
	}
	mimeType := msg.Attachment.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	const boundary = "autoclaw-mime-boundary"
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Content)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: %s\r\nContent-Disposition: attachment; filename=%q\r\nContent-Transfer-Encoding: base64\r\n\r\n",
		boundary, mimeType, filename)

	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	fmt.Fprintf(&b, "\r\n--%s--\r\n", boundary)
	return []byte(b.String()), nil
}

// pollMaildir watches the maildir's new/ directory and emits each
// message once, moving it to cur/ the way maildir readers do.
func (c *Channel) pollMaildir(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scanMaildir()
		}
	}
}

func (c *Channel) scanMaildir() {
	newDir := filepath.Join(c.cfg.Maildir, "new")
	curDir := filepath.Join(c.cfg.Maildir, "cur")
	entries, err := os.ReadDir(newDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(newDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		msg := parseMail(entry.Name(), data)
		if err := os.MkdirAll(curDir, 0o755); err == nil {
			if err := os.Rename(path, filepath.Join(curDir, entry.Name())); err != nil {
				c.logger.Warn("failed to move maildir entry", "file", entry.Name(), "error", err)
			}
		}
		select {
		case c.incoming <- msg:
			c.touch()
		default:
			c.logger.Warn("incoming mail queue full, dropping message", "file", entry.Name())
		}
	}
}

// parseMail extracts From, Subject, and the plain body from a raw
// message. Parsing is deliberately loose; anything unparseable still
// surfaces with its raw content.
func parseMail(id string, raw []byte) *channels.IncomingMessage {
	msg := &channels.IncomingMessage{
		ID:        id,
		Channel:   "email",
		Type:      channels.MessageText,
		Timestamp: time.Now(),
	}

	head, body, found := strings.Cut(string(raw), "\r\n\r\n")
	if !found {
		head, body, found = strings.Cut(string(raw), "\n\n")
	}
	if !found {
		msg.Content = string(raw)
		return msg
	}

	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimRight(line, "\r")
		if value, ok := strings.CutPrefix(line, "From: "); ok {
			msg.From = strings.TrimSpace(value)
			msg.FromName = msg.From
		}
		if value, ok := strings.CutPrefix(line, "Subject: "); ok {
			msg.Metadata = map[string]any{"subject": strings.TrimSpace(value)}
		}
	}
	msg.ChatID = msg.From
	msg.Content = strings.TrimSpace(body)
	return msg
}

func (c *Channel) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Channel) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}
