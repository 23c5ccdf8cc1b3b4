// Package telegram implements the Telegram channel using the
// go-telegram/bot library: long polling for incoming messages,
// outbound text, photo, and document sends, and rate-paced bulk
// delivery.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"autoclaw/pkg/autoclaw/channels"
)

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string

	// AllowedChats restricts which chat IDs the bot responds to.
	// Empty means respond to all chats.
	AllowedChats []int64

	// RespondToGroups enables receiving from group chats.
	RespondToGroups bool

	// ParseMode sets the parse mode for outgoing messages.
	ParseMode string

	// RatePerSecond paces outgoing messages. Zero means 1 per second,
	// Telegram's tolerance for sustained sends.
	RatePerSecond int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RespondToGroups: true,
		ParseMode:       "Markdown",
		RatePerSecond:   1,
	}
}

// Telegram implements channels.Channel and channels.BulkChannel.
type Telegram struct {
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	messages  chan *channels.IncomingMessage
	connected atomic.Bool
	lastMsg   atomic.Value // time.Time
	lastErr   atomic.Value // string

	mu     sync.Mutex
	bot    *bot.Bot
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Telegram channel instance.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Telegram{
		cfg:      cfg,
		logger:   logger.With("channel", "telegram"),
		limiter:  rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect validates the token and starts the long-polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram channel requires a bot token")
	}

	b, err := bot.New(t.cfg.Token, bot.WithDefaultHandler(t.handleUpdate))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	t.logger.Info("telegram bot connected", "username", me.Username)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.bot = b
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()
	t.connected.Store(true)

	go func() {
		defer close(done)
		b.Start(pollCtx)
	}()
	return nil
}

// Disconnect stops the polling loop.
func (t *Telegram) Disconnect() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// IsConnected reports whether the polling loop is active.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// Health returns the channel health status.
func (t *Telegram) Health() channels.HealthStatus {
	status := channels.HealthStatus{Connected: t.connected.Load()}
	if v, ok := t.lastMsg.Load().(time.Time); ok {
		status.LastActivity = v
	}
	if v, ok := t.lastErr.Load().(string); ok {
		status.LastError = v
	}
	return status
}

// Receive returns the incoming message stream.
func (t *Telegram) Receive() <-chan *channels.IncomingMessage {
	return t.messages
}

// handleUpdate converts a Telegram update into an IncomingMessage.
func (t *Telegram) handleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	m := update.Message
	if m == nil || m.Text == "" {
		return
	}

	isGroup := m.Chat.Type != "private"
	if isGroup && !t.cfg.RespondToGroups {
		return
	}
	if !t.chatAllowed(m.Chat.ID) {
		t.logger.Debug("message from disallowed chat dropped", "chat_id", m.Chat.ID)
		return
	}

	fromName := ""
	fromID := ""
	if m.From != nil {
		fromID = strconv.FormatInt(m.From.ID, 10)
		fromName = m.From.FirstName
		if m.From.Username != "" {
			fromName = m.From.Username
		}
	}

	msg := &channels.IncomingMessage{
		ID:        strconv.Itoa(m.ID),
		Channel:   "telegram",
		From:      fromID,
		FromName:  fromName,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		IsGroup:   isGroup,
		Type:      channels.MessageText,
		Content:   m.Text,
		Timestamp: time.Unix(int64(m.Date), 0),
	}

	t.lastMsg.Store(time.Now())
	select {
	case t.messages <- msg:
	default:
		t.logger.Warn("incoming queue full, dropping message", "chat_id", msg.ChatID)
	}
}

func (t *Telegram) chatAllowed(chatID int64) bool {
	if len(t.cfg.AllowedChats) == 0 {
		return true
	}
	for _, id := range t.cfg.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// Send delivers a message to the given chat ID. An attachment turns
// the send into a photo or document upload.
func (t *Telegram) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	t.mu.Lock()
	b := t.bot
	t.mu.Unlock()
	if b == nil {
		return fmt.Errorf("telegram channel is not connected")
	}

	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", to, err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	err = retry(ctx, t.logger, 3, time.Second, func() error {
		if msg.Attachment != nil {
			return t.sendAttachment(ctx, b, chatID, msg)
		}
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      msg.Content,
			ParseMode: models.ParseMode(t.cfg.ParseMode),
		})
		return err
	})
	if err != nil {
		t.lastErr.Store(err.Error())
		return fmt.Errorf("send telegram message to %d: %w", chatID, err)
	}

	t.lastMsg.Store(time.Now())
	return nil
}

func (t *Telegram) sendAttachment(ctx context.Context, b *bot.Bot, chatID int64, msg *channels.OutgoingMessage) error {
	att := msg.Attachment
	data := att.Data
	if len(data) == 0 && att.Path != "" {
		var err error
		data, err = os.ReadFile(att.Path)
		if err != nil {
			return fmt.Errorf("read attachment: %w", err)
		}
	}
	filename := att.Filename
	if filename == "" {
		filename = filepath.Base(att.Path)
	}
	caption := att.Caption
	if caption == "" {
		caption = msg.Content
	}

	upload := &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)}
	if att.Type == channels.MessageImage {
		_, err := b.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   upload,
			Caption: caption,
		})
		return err
	}
	_, err := b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: upload,
		Caption:  caption,
	})
	return err
}

// SendBulk delivers the message to every chat, paced by the limiter.
func (t *Telegram) SendBulk(ctx context.Context, recipients []string, msg *channels.OutgoingMessage) (*channels.BulkResult, error) {
	result := &channels.BulkResult{Failed: make(map[string]string)}
	for _, to := range recipients {
		if err := t.Send(ctx, to, msg); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed[to] = err.Error()
			continue
		}
		result.Sent++
	}
	t.logger.Info("bulk telegram send finished", "sent", result.Sent, "failed", len(result.Failed))
	return result, nil
}

// retry runs fn up to attempts times with a fixed delay between tries.
// The delay is abandoned when ctx is cancelled.
func retry(ctx context.Context, logger *slog.Logger, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			logger.Warn("retrying after error", "attempt", i+1, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
