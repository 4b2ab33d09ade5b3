package market

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// StreamKey identifies one logical subscription. An empty Interval
// selects the per-symbol ticker stream instead of a kline stream.
type StreamKey struct {
	Symbol   string
	Interval string
}

// Topic is the transport topic name for the key.
func (k StreamKey) Topic() string {
	symbol := strings.ToLower(strings.TrimSpace(k.Symbol))
	if k.Interval == "" {
		return symbol + "@ticker"
	}
	return symbol + "@kline_" + k.Interval
}

// StreamState is the lifecycle state of a managed connection.
type StreamState string

const (
	StateIdle       StreamState = "idle"
	StateConnecting StreamState = "connecting"
	StateOpen       StreamState = "open"
	StateClosing    StreamState = "closing"
)

// MessageStream is one live transport connection delivering discrete
// messages.
type MessageStream interface {
	Read(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// Transport opens message streams by topic.
type Transport interface {
	Open(ctx context.Context, topic string) (MessageStream, error)
}

// handle wraps one open stream plus its delivery goroutine.
type handle struct {
	key    StreamKey
	cancel context.CancelFunc
	done   chan struct{}
}

// StreamManager owns at most one live stream. Start force-closes any
// previous stream before dialing the new topic, and Stop returns only
// after the delivery goroutine has quiesced, so a stale message can
// never be delivered into a store that has moved to a new key.
type StreamManager struct {
	transport Transport
	handler   func(json.RawMessage)
	onError   func(error)
	log       *zap.Logger

	mu     sync.Mutex
	state  StreamState
	handle *handle
}

func NewStreamManager(transport Transport, handler func(json.RawMessage), log *zap.Logger) *StreamManager {
	return &StreamManager{
		transport: transport,
		handler:   handler,
		log:       log,
		state:     StateIdle,
	}
}

// OnError registers a callback invoked when the transport fails while
// the stream is open. The manager does not reconnect on its own;
// recovery is an explicit Restart.
func (m *StreamManager) OnError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

func (m *StreamManager) State() StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Key returns the key of the current or most recent stream.
func (m *StreamManager) Key() (StreamKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return StreamKey{}, false
	}
	return m.handle.key, true
}

// Start opens a stream for key, closing any live stream first.
func (m *StreamManager) Start(ctx context.Context, key StreamKey) error {
	m.Stop()

	m.mu.Lock()
	m.state = StateConnecting
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := m.transport.Open(runCtx, key.Topic())
	if err != nil {
		cancel()
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		return err
	}

	h := &handle{key: key, cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.handle = h
	m.state = StateOpen
	m.mu.Unlock()
	m.log.Info("stream open", zap.String("topic", key.Topic()))

	go m.deliver(runCtx, stream, h)
	return nil
}

// Stop closes the current stream and waits for its delivery goroutine
// to exit. Idempotent: stopping an absent stream is a no-op.
func (m *StreamManager) Stop() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	if h != nil {
		m.state = StateClosing
	}
	m.mu.Unlock()
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	m.log.Info("stream closed", zap.String("topic", h.key.Topic()))
}

// Restart replaces the current stream with one for key. The caller is
// responsible for replacing the bound store's contents first; the old
// series is meaningless under the new key.
func (m *StreamManager) Restart(ctx context.Context, key StreamKey) error {
	m.Stop()
	return m.Start(ctx, key)
}

func (m *StreamManager) deliver(ctx context.Context, stream MessageStream, h *handle) {
	defer close(h.done)
	defer stream.Close()
	defer h.cancel()
	for {
		msg, err := stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Warn("stream read failed", zap.String("topic", h.key.Topic()), zap.Error(err))
			m.dropHandle(h)
			m.mu.Lock()
			onError := m.onError
			m.mu.Unlock()
			if onError != nil {
				onError(err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.handler(msg)
	}
}

// dropHandle transitions to Idle after a transport failure, unless a
// newer stream has already replaced h.
func (m *StreamManager) dropHandle(h *handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == h {
		m.handle = nil
		m.state = StateIdle
	}
}
