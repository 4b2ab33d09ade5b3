package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Client dials one websocket stream per topic. Lifecycle (who opens,
// who closes, when to swap) belongs to the caller; the client only
// speaks the transport.
type Client struct {
	baseURL      string
	pingInterval time.Duration
	log          *zap.Logger
}

func New(baseURL string, pingInterval time.Duration, log *zap.Logger) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), pingInterval: pingInterval, log: log}
}

// Open dials the stream for topic. The returned stream is bound to ctx:
// cancelling it unblocks Read and stops the ping loop.
func (c *Client) Open(ctx context.Context, topic string) (*Stream, error) {
	conn, _, err := websocket.Dial(ctx, c.baseURL+"/"+topic, nil)
	if err != nil {
		return nil, err
	}
	s := &Stream{conn: conn, log: c.log}
	if c.pingInterval > 0 {
		go s.pingLoop(ctx, c.pingInterval)
	}
	return s, nil
}

// Stream is a single live subscription delivering one JSON text message
// per event.
type Stream struct {
	conn *websocket.Conn
	log  *zap.Logger
}

func (s *Stream) Read(ctx context.Context) (json.RawMessage, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (s *Stream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}

func (s *Stream) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				if ctx.Err() == nil && s.log != nil {
					s.log.Debug("ws ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}
