// Package discord implements the Discord channel using discordgo:
// gateway connection, guild and channel allowlists, text and file
// sends with automatic chunking at the 2000 character limit.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"autoclaw/pkg/autoclaw/channels"
)

// maxMessageLen is Discord's hard limit per message.
const maxMessageLen = 2000

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// AllowedGuilds restricts which guild (server) IDs the bot listens
	// in. Empty means all guilds.
	AllowedGuilds []string

	// AllowedChannels restricts which channel IDs the bot listens in.
	// Empty means all channels.
	AllowedChannels []string
}

// Discord implements channels.Channel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	messages  chan *channels.IncomingMessage
	connected atomic.Bool
	lastMsg   atomic.Value // time.Time
	lastErr   atomic.Value // string
}

// New creates a Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("channel", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord channel requires a bot token")
	}

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)
	d.logger.Info("discord connected", "bot", session.State.User.Username, "id", session.State.User.ID)
	return nil
}

// Disconnect closes the gateway connection.
func (d *Discord) Disconnect() error {
	d.connected.Store(false)
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

// IsConnected reports whether the gateway is open.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	status := channels.HealthStatus{Connected: d.connected.Load()}
	if v, ok := d.lastMsg.Load().(time.Time); ok {
		status.LastActivity = v
	}
	if v, ok := d.lastErr.Load().(string); ok {
		status.LastError = v
	}
	return status
}

// Receive returns the incoming message stream.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if m.GuildID != "" && !idAllowed(d.cfg.AllowedGuilds, m.GuildID) {
		return
	}
	if !idAllowed(d.cfg.AllowedChannels, m.ChannelID) {
		return
	}

	msg := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		ChatID:    m.ChannelID,
		IsGroup:   m.GuildID != "",
		Type:      channels.MessageText,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}

	d.lastMsg.Store(time.Now())
	select {
	case d.messages <- msg:
	default:
		d.logger.Warn("incoming queue full, dropping message", "channel_id", m.ChannelID)
	}
}

func idAllowed(allowlist []string, id string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, allowed := range allowlist {
		if allowed == id {
			return true
		}
	}
	return false
}

// Send delivers a message to the given channel ID, splitting content
// that exceeds the message length limit.
func (d *Discord) Send(ctx context.Context, to string, msg *channels.OutgoingMessage) error {
	if !d.connected.Load() || d.session == nil {
		return fmt.Errorf("discord channel is not connected")
	}

	if msg.Attachment != nil {
		return d.sendFile(to, msg)
	}

	for _, chunk := range splitMessage(msg.Content, maxMessageLen) {
		if _, err := d.session.ChannelMessageSend(to, chunk); err != nil {
			d.lastErr.Store(err.Error())
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	d.lastMsg.Store(time.Now())
	return nil
}

func (d *Discord) sendFile(to string, msg *channels.OutgoingMessage) error {
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

	send := &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: att.MimeType,
			Reader:      bytes.NewReader(data),
		}},
	}
	if _, err := d.session.ChannelMessageSendComplex(to, send); err != nil {
		d.lastErr.Store(err.Error())
		return fmt.Errorf("send discord file: %w", err)
	}
	d.lastMsg.Store(time.Now())
	return nil
}

// splitMessage cuts content into chunks of at most limit characters,
// preferring to break on newlines.
func splitMessage(content string, limit int) []string {
	if content == "" {
		return []string{""}
	}
	var chunks []string
	for len(content) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if content[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, content[:cut])
		content = content[cut:]
	}
	return append(chunks, content)
}
