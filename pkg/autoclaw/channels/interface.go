package channels

import "context"

// Channel defines the interface that every communication channel must
// implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "email", "telegram").
	Name() string

	// Connect establishes the connection to the platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the specified recipient.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	// Channels without an inbound side return a channel that never
	// emits.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// BulkChannel extends Channel with rate-paced delivery to many
// recipients.
type BulkChannel interface {
	Channel

	// SendBulk delivers the message to every recipient, pacing sends
	// to the platform's tolerance. Partial failure is reported per
	// recipient, not returned as an error.
	SendBulk(ctx context.Context, recipients []string, message *OutgoingMessage) (*BulkResult, error)
}
