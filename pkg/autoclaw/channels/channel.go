// Package channels defines the interfaces and types for AutoClaw
// communication channels. Each channel (email, Telegram, WhatsApp,
// Discord) implements the Channel interface to send and receive
// messages in a unified way.
package channels

import (
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageDocument MessageType = "document"
)

// IncomingMessage represents a message received from any channel.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "telegram").
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name (if available).
	FromName string

	// ChatID is the group or DM identifier.
	ChatID string

	// IsGroup indicates whether the message is from a group chat.
	IsGroup bool

	// Type is the message content type.
	Type MessageType

	// Content is the text content of the message.
	Content string

	// Timestamp is when the message was sent.
	Timestamp time.Time

	// Metadata contains additional channel-specific data.
	Metadata map[string]any
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Subject is used by channels that have one (email).
	Subject string

	// Content is the text content of the message.
	Content string

	// Attachment is an optional file to send with the message.
	Attachment *Attachment

	// Metadata contains additional channel-specific data.
	Metadata map[string]any
}

// Attachment is a file sent with an outgoing message.
type Attachment struct {
	// Type is the media type (image, audio, document).
	Type MessageType

	// Path is the local file to attach. Either Path or Data must be set.
	Path string

	// Data is the raw attachment bytes.
	Data []byte

	// Filename is the name presented to the recipient.
	Filename string

	// MimeType is the MIME type (e.g. "image/jpeg").
	MimeType string

	// Caption is the text accompanying the media.
	Caption string
}

// HealthStatus reports a channel's connection health.
type HealthStatus struct {
	// Connected indicates an active connection to the platform.
	Connected bool

	// LastError is the most recent connection error (if any).
	LastError string

	// LastActivity is when the channel last sent or received.
	LastActivity time.Time
}

// BulkResult reports the outcome of a bulk send.
type BulkResult struct {
	// Sent is the number of successful deliveries.
	Sent int

	// Failed maps recipient to the error that prevented delivery.
	Failed map[string]string
}
