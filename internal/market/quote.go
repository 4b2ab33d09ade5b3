package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"atlas-feed/internal/metrics"
)

// DefaultSparkPoints bounds the per-quote price history kept for
// sparkline rendering.
const DefaultSparkPoints = 200

// Quote is the latest ticker state for one symbol. The three fields are
// always replaced together from a single message, never partially.
type Quote struct {
	Price     float64
	Change    float64
	ChangePct float64
}

// tickerEvent carries the consumed subset of the Binance ticker stream.
type tickerEvent struct {
	Last      string `json:"c"`
	Change    string `json:"p"`
	ChangePct string `json:"P"`
}

// ParseTickerDelta decodes one ticker stream message into a Quote. Any
// field failing to parse drops the whole message, keeping updates
// atomic.
func ParseTickerDelta(msg json.RawMessage) (Quote, error) {
	var ev tickerEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return Quote{}, fmt.Errorf("decode ticker event: %w", err)
	}
	price, err := parsePrice(ev.Last, "last price")
	if err != nil {
		return Quote{}, err
	}
	change, err := parsePrice(ev.Change, "change")
	if err != nil {
		return Quote{}, err
	}
	pct, err := parsePrice(ev.ChangePct, "change percent")
	if err != nil {
		return Quote{}, err
	}
	return Quote{Price: price, Change: change, ChangePct: pct}, nil
}

// QuoteTicker maintains the live quote for one symbol from its ticker
// stream, with its own connection lifecycle independent of the candle
// pipeline. It also keeps a bounded trail of last prices for the
// sparkline on the quote card.
type QuoteTicker struct {
	symbol  string
	manager *StreamManager
	notify  func()
	log     *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	quote    Quote
	hasQuote bool
	spark    []float64
	sparkCap int
}

func NewQuoteTicker(symbol string, transport Transport, sparkPoints int, notify func(), log *zap.Logger, m *metrics.Metrics) *QuoteTicker {
	if sparkPoints <= 0 {
		sparkPoints = DefaultSparkPoints
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	q := &QuoteTicker{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		notify:   notify,
		log:      log,
		metrics:  m,
		sparkCap: sparkPoints,
	}
	q.manager = NewStreamManager(transport, q.handle, log)
	return q
}

func (q *QuoteTicker) Symbol() string {
	return q.symbol
}

func (q *QuoteTicker) Start(ctx context.Context) error {
	return q.manager.Start(ctx, StreamKey{Symbol: q.symbol})
}

func (q *QuoteTicker) Stop() {
	q.manager.Stop()
}

func (q *QuoteTicker) State() StreamState {
	return q.manager.State()
}

// Quote returns the last ticker state; false until the first message
// lands.
func (q *QuoteTicker) Quote() (Quote, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.quote, q.hasQuote
}

// Spark returns a copy of the recent price trail, oldest first.
func (q *QuoteTicker) Spark() []float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]float64(nil), q.spark...)
}

func (q *QuoteTicker) handle(msg json.RawMessage) {
	quote, err := ParseTickerDelta(msg)
	if err != nil {
		q.metrics.DecodeFailed.Inc()
		q.log.Debug("dropped malformed ticker message", zap.String("symbol", q.symbol), zap.Error(err))
		return
	}
	q.mu.Lock()
	q.quote = quote
	q.hasQuote = true
	q.spark = append(q.spark, quote.Price)
	if len(q.spark) > q.sparkCap {
		q.spark = q.spark[len(q.spark)-q.sparkCap:]
	}
	q.mu.Unlock()
	q.metrics.QuoteUpdates.Inc()
	if q.notify != nil {
		q.notify()
	}
}
