package channels

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeChannel is a minimal in-memory Channel for manager tests.
type fakeChannel struct {
	name      string
	connected bool
	connErr   error
	incoming  chan *IncomingMessage
	sent      []string
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{name: name, incoming: make(chan *IncomingMessage, 8)}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Connect(ctx context.Context) error {
	if f.connErr != nil {
		return f.connErr
	}
	f.connected = true
	return nil
}

func (f *fakeChannel) Disconnect() error {
	f.connected = false
	close(f.incoming)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, to string, msg *OutgoingMessage) error {
	f.sent = append(f.sent, to+":"+msg.Content)
	return nil
}

func (f *fakeChannel) Receive() <-chan *IncomingMessage { return f.incoming }
func (f *fakeChannel) IsConnected() bool                { return f.connected }
func (f *fakeChannel) Health() HealthStatus {
	return HealthStatus{Connected: f.connected}
}

func TestManagerRegisterDuplicate(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(newFakeChannel("a")); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(newFakeChannel("a")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestManagerAggregatesMessages(t *testing.T) {
	m := NewManager(nil)
	a := newFakeChannel("a")
	b := newFakeChannel("b")
	if err := m.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(b); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	a.incoming <- &IncomingMessage{Channel: "a", Content: "from a"}
	b.incoming <- &IncomingMessage{Channel: "b", Content: "from b"}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-m.Messages():
			got[msg.Channel] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for aggregated message")
		}
	}
	if !got["a"] || !got["b"] {
		t.Errorf("missing channels in aggregate stream: %v", got)
	}
}

func TestManagerSendRouting(t *testing.T) {
	m := NewManager(nil)
	a := newFakeChannel("a")
	if err := m.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if err := m.Send(context.Background(), "a", "user", &OutgoingMessage{Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.sent) != 1 || a.sent[0] != "user:hi" {
		t.Errorf("sent = %v", a.sent)
	}

	if err := m.Send(context.Background(), "missing", "user", &OutgoingMessage{}); err == nil {
		t.Error("send to unregistered channel should fail")
	}
}

func TestManagerConnectFailureIsolated(t *testing.T) {
	m := NewManager(nil)
	bad := newFakeChannel("bad")
	bad.connErr = errors.New("no credentials")
	good := newFakeChannel("good")
	if err := m.Register(bad); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(good); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	if !good.IsConnected() {
		t.Error("healthy channel should connect despite sibling failure")
	}
	if err := m.Send(context.Background(), "bad", "x", &OutgoingMessage{}); err == nil {
		t.Error("send through disconnected channel should fail")
	}
}

func TestManagerHealth(t *testing.T) {
	m := NewManager(nil)
	a := newFakeChannel("a")
	if err := m.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	health := m.Health()
	if !health["a"].Connected {
		t.Errorf("health = %+v, want connected", health["a"])
	}
}
