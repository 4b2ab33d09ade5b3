package market

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStream delivers queued messages and then blocks until closed or
// until a read error is injected.
type fakeStream struct {
	topic string
	msgs  chan json.RawMessage
	errs  chan error

	mu     sync.Mutex
	closed bool
}

func newFakeStream(topic string) *fakeStream {
	return &fakeStream{
		topic: topic,
		msgs:  make(chan json.RawMessage, 16),
		errs:  make(chan error, 1),
	}
}

func (s *fakeStream) Read(ctx context.Context) (json.RawMessage, error) {
	select {
	case msg := <-s.msgs:
		return msg, nil
	case err := <-s.errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
}

func (t *fakeTransport) Open(ctx context.Context, topic string) (MessageStream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	s := newFakeStream(topic)
	t.streams = append(t.streams, s)
	return s, nil
}

func (t *fakeTransport) last() *fakeStream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

func (t *fakeTransport) opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.streams)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestStreamKeyTopics(t *testing.T) {
	key := StreamKey{Symbol: "BTCUSDT", Interval: "30m"}
	if got := key.Topic(); got != "btcusdt@kline_30m" {
		t.Fatalf("expected kline topic, got %s", got)
	}
	ticker := StreamKey{Symbol: "ETHUSDT"}
	if got := ticker.Topic(); got != "ethusdt@ticker" {
		t.Fatalf("expected ticker topic, got %s", got)
	}
}

func TestStreamManagerStartDeliversMessages(t *testing.T) {
	transport := &fakeTransport{}
	var mu sync.Mutex
	var got []string
	m := NewStreamManager(transport, func(msg json.RawMessage) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	}, zap.NewNop())

	if err := m.Start(context.Background(), StreamKey{Symbol: "BTCUSDT", Interval: "1h"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	if m.State() != StateOpen {
		t.Fatalf("expected open state, got %s", m.State())
	}
	transport.last().msgs <- json.RawMessage(`{"a":1}`)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != `{"a":1}` {
		t.Fatalf("unexpected message %s", got[0])
	}
}

func TestStreamManagerStopQuiesces(t *testing.T) {
	transport := &fakeTransport{}
	delivered := make(chan struct{}, 16)
	m := NewStreamManager(transport, func(json.RawMessage) {
		delivered <- struct{}{}
	}, zap.NewNop())

	if err := m.Start(context.Background(), StreamKey{Symbol: "BTCUSDT", Interval: "1h"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	stream := transport.last()
	m.Stop()

	if m.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %s", m.State())
	}
	if !stream.isClosed() {
		t.Fatalf("expected underlying stream closed")
	}
	// A message queued after Stop must never reach the handler.
	stream.msgs <- json.RawMessage(`{"late":true}`)
	select {
	case <-delivered:
		t.Fatalf("handler invoked after Stop returned")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamManagerStopIdempotent(t *testing.T) {
	m := NewStreamManager(&fakeTransport{}, func(json.RawMessage) {}, zap.NewNop())
	m.Stop()
	m.Stop()
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
}

func TestStreamManagerRestartSwapsKeys(t *testing.T) {
	transport := &fakeTransport{}
	m := NewStreamManager(transport, func(json.RawMessage) {}, zap.NewNop())

	if err := m.Start(context.Background(), StreamKey{Symbol: "BTCUSDT", Interval: "1h"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := transport.last()
	if err := m.Restart(context.Background(), StreamKey{Symbol: "ETHUSDT", Interval: "1h"}); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer m.Stop()

	if transport.opened() != 2 {
		t.Fatalf("expected 2 opened streams, got %d", transport.opened())
	}
	if !first.isClosed() {
		t.Fatalf("old stream must be closed before the new one starts")
	}
	key, ok := m.Key()
	if !ok || key.Symbol != "ETHUSDT" {
		t.Fatalf("expected new key bound, got %+v ok=%v", key, ok)
	}
}

func TestStreamManagerTransportErrorGoesIdleNoReconnect(t *testing.T) {
	transport := &fakeTransport{}
	m := NewStreamManager(transport, func(json.RawMessage) {}, zap.NewNop())
	errCh := make(chan error, 1)
	m.OnError(func(err error) { errCh <- err })

	if err := m.Start(context.Background(), StreamKey{Symbol: "BTCUSDT", Interval: "1h"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	transport.last().errs <- errors.New("connection reset")

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected error in callback")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for error callback")
	}
	waitFor(t, func() bool { return m.State() == StateIdle })
	if transport.opened() != 1 {
		t.Fatalf("manager must not reconnect on its own, opened %d", transport.opened())
	}
}

func TestStreamManagerOpenFailure(t *testing.T) {
	transport := &fakeTransport{openErr: errors.New("dial refused")}
	m := NewStreamManager(transport, func(json.RawMessage) {}, zap.NewNop())
	if err := m.Start(context.Background(), StreamKey{Symbol: "BTCUSDT", Interval: "1h"}); err == nil {
		t.Fatalf("expected start error")
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after failed start, got %s", m.State())
	}
}
