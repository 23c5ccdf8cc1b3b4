package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager orchestrates multiple communication channels, aggregating
// incoming messages into a single stream and routing outgoing messages
// to the right channel.
type Manager struct {
	channels map[string]Channel
	messages chan *IncomingMessage
	logger   *slog.Logger

	listenWg sync.WaitGroup

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a channel manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		channels: make(map[string]Channel),
		messages: make(chan *IncomingMessage, 256),
		logger:   logger.With("component", "channels"),
	}
}

// Register adds a channel to the manager. Call before Start.
func (m *Manager) Register(ch Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ch.Name()
	if _, exists := m.channels[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	m.channels[name] = ch
	m.logger.Info("channel registered", "channel", name)
	return nil
}

// Start connects all registered channels and begins listening.
// Channels that fail to connect are logged but do not prevent the
// rest from starting.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.mu.RLock()
	snapshot := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	if len(snapshot) == 0 {
		m.logger.Warn("no channels registered, running without messaging")
		return nil
	}

	for name, ch := range snapshot {
		if err := ch.Connect(m.ctx); err != nil {
			m.logger.Error("failed to connect channel", "channel", name, "error", err)
			continue
		}
		m.logger.Info("channel connected", "channel", name)

		m.listenWg.Add(1)
		go func(c Channel) {
			defer m.listenWg.Done()
			m.listen(c)
		}(ch)
	}
	return nil
}

// listen forwards one channel's messages into the aggregate stream.
func (m *Manager) listen(ch Channel) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-ch.Receive():
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			select {
			case m.messages <- msg:
			case <-m.ctx.Done():
				return
			default:
				m.logger.Warn("message stream full, dropping message",
					"channel", msg.Channel, "from", msg.From)
			}
		}
	}
}

// Stop disconnects all channels and waits for listeners to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.RLock()
	snapshot := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for name, ch := range snapshot {
		if err := ch.Disconnect(); err != nil {
			m.logger.Error("failed to disconnect channel", "channel", name, "error", err)
		}
	}
	m.listenWg.Wait()
}

// Messages returns the aggregate incoming message stream.
func (m *Manager) Messages() <-chan *IncomingMessage {
	return m.messages
}

// Send routes a message through the named channel.
func (m *Manager) Send(ctx context.Context, channel, to string, msg *OutgoingMessage) error {
	m.mu.RLock()
	ch, ok := m.channels[channel]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("channel %q not registered", channel)
	}
	if !ch.IsConnected() {
		return fmt.Errorf("channel %q is not connected", channel)
	}
	return ch.Send(ctx, to, msg)
}

// SendBulk routes a bulk send through the named channel, which must
// support bulk delivery.
func (m *Manager) SendBulk(ctx context.Context, channel string, recipients []string, msg *OutgoingMessage) (*BulkResult, error) {
	m.mu.RLock()
	ch, ok := m.channels[channel]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("channel %q not registered", channel)
	}
	bulk, ok := ch.(BulkChannel)
	if !ok {
		return nil, fmt.Errorf("channel %q does not support bulk sending", channel)
	}
	return bulk.SendBulk(ctx, recipients, msg)
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists the registered channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// Health reports per-channel health.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]HealthStatus, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.Health()
	}
	return out
}
