// Package whatsapp implements the WhatsApp channel using whatsmeow.
// The session is persisted in a SQLite store; first login links the
// device by QR code.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.

	"autoclaw/pkg/autoclaw/channels"
)

// Config holds WhatsApp channel configuration.
type Config struct {
	// SessionDir is the directory for the session database.
	SessionDir string

	// RespondToGroups enables receiving from group chats.
	RespondToGroups bool

	// RespondToDMs enables receiving direct messages.
	RespondToDMs bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir:   "./data/whatsapp",
		RespondToDMs: true,
	}
}

// QREvent is emitted while waiting for the device link.
type QREvent struct {
	// Type is "code", "success", "timeout", or "error".
	Type    string
	Code    string
	Message string
}

// WhatsApp implements channels.Channel.
type WhatsApp struct {
	cfg    Config
	logger *slog.Logger

	messages  chan *channels.IncomingMessage
	qrEvents  chan QREvent
	connected atomic.Bool
	lastMsg   atomic.Value // time.Time
	lastErr   atomic.Value // string

	mu     sync.Mutex
	client *whatsmeow.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp channel instance.
func New(cfg Config, logger *slog.Logger) *WhatsApp {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = "./data/whatsapp"
	}
	return &WhatsApp{
		cfg:      cfg,
		logger:   logger.With("channel", "whatsapp"),
		messages: make(chan *channels.IncomingMessage, 256),
		qrEvents: make(chan QREvent, 8),
	}
}

// Name returns "whatsapp".
func (w *WhatsApp) Name() string { return "whatsapp" }

// QREvents returns the QR event stream for first-time device linking.
func (w *WhatsApp) QREvents() <-chan QREvent { return w.qrEvents }

// Connect opens the session store and connects. Without an existing
// session the QR login runs in the background and Connect returns
// immediately.
func (w *WhatsApp) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.ctx = ctx
	w.cancel = cancel
	w.mu.Unlock()

	if err := os.MkdirAll(w.cfg.SessionDir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	dbPath := filepath.Join(w.cfg.SessionDir, "session.db")

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}
	store.SetOSInfo("AutoClaw", [3]uint32{1, 0, 0})

	client := whatsmeow.NewClient(device, waLog.Noop)
	client.AddEventHandler(w.handleEvent)
	client.EnableAutoReconnect = true

	w.mu.Lock()
	w.client = client
	w.mu.Unlock()

	if client.Store.ID == nil {
		w.logger.Info("no whatsapp session, QR code required")
		go func() {
			if err := w.loginWithQR(ctx); err != nil {
				w.logger.Warn("whatsapp QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	w.connected.Store(true)
	w.logger.Info("whatsapp connected", "jid", client.Store.ID.String())
	return nil
}

func (w *WhatsApp) loginWithQR(ctx context.Context) error {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed")
			}
			switch evt.Event {
			case "code":
				w.logger.Info("whatsapp QR code ready, scan to link device")
				w.emitQR(QREvent{Type: "code", Code: evt.Code, Message: "Scan with WhatsApp to link this device"})
			case "success":
				w.connected.Store(true)
				w.logger.Info("whatsapp login successful")
				w.emitQR(QREvent{Type: "success", Message: "WhatsApp linked"})
				return nil
			case "timeout":
				w.logger.Warn("whatsapp QR code expired")
				w.emitQR(QREvent{Type: "timeout", Message: "QR code expired"})
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					w.emitQR(QREvent{Type: "error", Message: evt.Error.Error()})
					return fmt.Errorf("QR login: %w", evt.Error)
				}
			}
		}
	}
}

func (w *WhatsApp) emitQR(evt QREvent) {
	select {
	case w.qrEvents <- evt:
	default:
	}
}

// Disconnect closes the connection.
func (w *WhatsApp) Disconnect() error {
	w.connected.Store(false)
	w.mu.Lock()
	cancel, client := w.cancel, w.client
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect()
	}
	return nil
}

// IsConnected reports whether the client is connected and logged in.
func (w *WhatsApp) IsConnected() bool { return w.connected.Load() }

// Health returns the channel health status.
func (w *WhatsApp) Health() channels.HealthStatus {
	status := channels.HealthStatus{Connected: w.connected.Load()}
	if v, ok := w.lastMsg.Load().(time.Time); ok {
		status.LastActivity = v
	}
	if v, ok := w.lastErr.Load().(string); ok {
		status.LastError = v
	}
	return status
}

// Receive returns the incoming message stream.
func (w *WhatsApp) Receive() <-chan *channels.IncomingMessage {
	return w.messages
}

// handleEvent is the whatsmeow event dispatcher.
func (w *WhatsApp) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		w.handleMessage(evt)
	case *events.Connected:
		w.connected.Store(true)
		w.logger.Info("whatsapp connected")
	case *events.Disconnected:
		w.connected.Store(false)
		w.logger.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		w.connected.Store(false)
		w.logger.Warn("whatsapp logged out, session removed on phone")
	case *events.StreamReplaced:
		w.connected.Store(false)
		w.logger.Warn("whatsapp stream replaced by another client")
	}
}

func (w *WhatsApp) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe {
		return
	}
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	isGroup := evt.Info.IsGroup
	if isGroup && !w.cfg.RespondToGroups {
		return
	}
	if !isGroup && !w.cfg.RespondToDMs {
		return
	}

	content := extractText(evt.Message)
	if content == "" {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        string(evt.Info.ID),
		Channel:   "whatsapp",
		From:      evt.Info.Sender.String(),
		FromName:  evt.Info.PushName,
		ChatID:    evt.Info.Chat.String(),
		IsGroup:   isGroup,
		Type:      channels.MessageText,
		Content:   content,
		Timestamp: evt.Info.Timestamp,
	}

	w.lastMsg.Store(time.Now())
	select {
	case w.messages <- msg:
	default:
		w.logger.Warn("incoming queue full, dropping message", "chat", msg.ChatID)
	}
}

func extractText(waMsg *waE2E.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	return ""
}

// Send delivers a message to the given JID or phone number.
func (w *WhatsApp) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !w.connected.Load() {
		return fmt.Errorf("whatsapp channel is not connected")
	}
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()

	jid, err := parseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %q: %w", to, err)
	}

	var waMsg *waE2E.Message
	if msg.Attachment != nil {
		waMsg, err = w.buildMediaMessage(ctx, client, msg)
		if err != nil {
			return err
		}
	} else {
		waMsg = &waE2E.Message{Conversation: proto.String(msg.Content)}
	}

	if _, err := client.SendMessage(ctx, jid, waMsg); err != nil {
		w.lastErr.Store(err.Error())
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	w.lastMsg.Store(time.Now())
	return nil
}

func (w *WhatsApp) buildMediaMessage(ctx context.Context, client *whatsmeow.Client, msg *channels.OutgoingMessage) (*waE2E.Message, error) {
	att := msg.Attachment
	data := att.Data
	if len(data) == 0 && att.Path != "" {
		var err error
		data, err = os.ReadFile(att.Path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
	}
	caption := att.Caption
	if caption == "" {
		caption = msg.Content
	}

	if att.Type == channels.MessageImage {
		resp, err := client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(att.MimeType),
			URL:           &resp.URL,
			DirectPath:    &resp.DirectPath,
			MediaKey:      resp.MediaKey,
			FileEncSHA256: resp.FileEncSHA256,
			FileSHA256:    resp.FileSHA256,
			FileLength:    &resp.FileLength,
		}}, nil
	}

	resp, err := client.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	filename := att.Filename
	if filename == "" {
		filename = filepath.Base(att.Path)
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(filename),
		FileName:      proto.String(filename),
		Caption:       proto.String(caption),
		Mimetype:      proto.String(att.MimeType),
		URL:           &resp.URL,
		DirectPath:    &resp.DirectPath,
		MediaKey:      resp.MediaKey,
		FileEncSHA256: resp.FileEncSHA256,
		FileSHA256:    resp.FileSHA256,
		FileLength:    &resp.FileLength,
	}}, nil
}

// parseJID converts a phone number or full JID string to types.JID.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}
	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
