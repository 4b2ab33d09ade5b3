package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"atlas-feed/internal/metrics"
)

// DefaultSnapshotTimeout bounds the history fetch; exceeding it is a
// failure surfaced as an empty store, not a hang.
const DefaultSnapshotTimeout = 12 * time.Second

// HistoryFetcher is the one-shot historical snapshot call, returning
// candles ordered oldest to newest.
type HistoryFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// EngineConfig holds the initial chart key and bounds for one engine.
type EngineConfig struct {
	Symbol          string
	Interval        string
	Range           string
	SnapshotLimit   int
	Retention       int
	SnapshotTimeout time.Duration
}

// View is the windowed read the renderer consumes.
type View struct {
	Symbol         string
	Interval       string
	Range          string
	Candles        []Candle
	SecondsToClose int64
}

// Engine composes the candle store, stream lifecycle and countdown into
// the unit a renderer talks to. Construction loads history then starts
// streaming; a symbol or interval change swaps both. The engine is the
// sole owner of its Series.
type Engine struct {
	fetch   HistoryFetcher
	series  *Series
	ingest  *Ingestor
	stream  *StreamManager
	log     *zap.Logger
	metrics *metrics.Metrics

	snapshotLimit   int
	snapshotTimeout time.Duration
	now             func() time.Time

	redraw chan struct{}

	mu         sync.Mutex
	symbol     string
	interval   string
	rangeTag   string
	tickCancel context.CancelFunc
	tickDone   chan struct{}
	started    bool
}

func NewEngine(cfg EngineConfig, fetch HistoryFetcher, transport Transport, log *zap.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.NewNoop()
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	e := &Engine{
		fetch:           fetch,
		series:          NewSeries(cfg.Retention),
		log:             log,
		metrics:         m,
		snapshotLimit:   cfg.SnapshotLimit,
		snapshotTimeout: cfg.SnapshotTimeout,
		now:             time.Now,
		redraw:          make(chan struct{}, 1),
		symbol:          strings.ToUpper(strings.TrimSpace(cfg.Symbol)),
		interval:        cfg.Interval,
		rangeTag:        cfg.Range,
	}
	if e.rangeTag == "" {
		e.rangeTag = RangeAll
	}
	e.ingest = NewIngestor(e.series, e.requestRedraw, log, m)
	e.stream = NewStreamManager(transport, e.ingest.Handle, log)
	e.stream.OnError(func(err error) {
		m.StreamDisconnects.Inc()
		e.requestRedraw()
	})
	return e
}

// Start loads the history snapshot, opens the stream and starts the
// countdown ticker. A failed or empty snapshot leaves the store empty
// and keeps going; the renderer shows a "no data" state.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	symbol, interval := e.symbol, e.interval
	e.mu.Unlock()

	e.loadSnapshot(ctx, symbol, interval)
	if err := e.stream.Start(ctx, StreamKey{Symbol: symbol, Interval: interval}); err != nil {
		e.log.Warn("stream start failed", zap.String("symbol", symbol), zap.String("interval", interval), zap.Error(err))
	}
	e.startCountdown(ctx)
	return nil
}

// SetSymbol swaps the chart to a new symbol: stop stream, fetch fresh
// history, replace the store, start the new stream.
func (e *Engine) SetSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	e.mu.Lock()
	if symbol == "" || symbol == e.symbol {
		e.mu.Unlock()
		return nil
	}
	e.symbol = symbol
	interval := e.interval
	e.mu.Unlock()
	return e.reload(ctx, symbol, interval)
}

// SetInterval swaps the chart interval and resets the countdown.
func (e *Engine) SetInterval(ctx context.Context, interval string) error {
	e.mu.Lock()
	if interval == "" || interval == e.interval {
		e.mu.Unlock()
		return nil
	}
	e.interval = interval
	symbol := e.symbol
	e.mu.Unlock()
	if err := e.reload(ctx, symbol, interval); err != nil {
		return err
	}
	e.restartCountdown(ctx)
	return nil
}

// SetRange changes the displayed window only; the store and stream are
// untouched.
func (e *Engine) SetRange(tag string) {
	e.mu.Lock()
	e.rangeTag = tag
	e.mu.Unlock()
	e.requestRedraw()
}

func (e *Engine) reload(ctx context.Context, symbol, interval string) error {
	e.stream.Stop()
	e.loadSnapshot(ctx, symbol, interval)
	return e.stream.Start(ctx, StreamKey{Symbol: symbol, Interval: interval})
}

func (e *Engine) loadSnapshot(ctx context.Context, symbol, interval string) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.snapshotTimeout)
	defer cancel()
	candles, err := e.fetch.Klines(fetchCtx, symbol, interval, e.snapshotLimit)
	if err != nil {
		e.metrics.SnapshotsFailed.Inc()
		e.log.Warn("history fetch failed", zap.String("symbol", symbol), zap.String("interval", interval), zap.Error(err))
		candles = nil
	}
	if err := e.series.LoadSnapshot(candles); err != nil {
		e.log.Warn("history snapshot is empty", zap.String("symbol", symbol), zap.String("interval", interval))
	} else {
		e.metrics.SnapshotsLoaded.Inc()
	}
	e.requestRedraw()
}

// Redraw signals that the view changed. Delivery is coalesced: at most
// one pending notification regardless of how many deltas arrived.
func (e *Engine) Redraw() <-chan struct{} {
	return e.redraw
}

func (e *Engine) requestRedraw() {
	select {
	case e.redraw <- struct{}{}:
	default:
	}
}

// View computes the windowed slice and countdown for the renderer. Safe
// to call from the foreground goroutine while the delivery goroutine
// upserts.
func (e *Engine) View() View {
	e.mu.Lock()
	symbol, interval, rangeTag := e.symbol, e.interval, e.rangeTag
	e.mu.Unlock()

	candles := e.series.Snapshot()
	var lastOpen int64
	if n := len(candles); n > 0 {
		lastOpen = candles[n-1].OpenTime.Unix()
	}
	return View{
		Symbol:         symbol,
		Interval:       interval,
		Range:          rangeTag,
		Candles:        SelectWindow(candles, rangeTag),
		SecondsToClose: SecondsToClose(IntervalSeconds(interval), e.now().UTC().Unix(), lastOpen),
	}
}

// Series exposes the store for overlay computation; callers read via
// Snapshot only.
func (e *Engine) Series() *Series {
	return e.series
}

func (e *Engine) StreamState() StreamState {
	return e.stream.State()
}

// startCountdown runs the 1-second ticker that keeps the countdown
// label fresh between deltas.
func (e *Engine) startCountdown(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.mu.Lock()
	e.tickCancel = cancel
	e.tickDone = done
	e.mu.Unlock()
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				e.requestRedraw()
			}
		}
	}()
}

func (e *Engine) stopCountdown() {
	e.mu.Lock()
	cancel := e.tickCancel
	done := e.tickDone
	e.tickCancel = nil
	e.tickDone = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) restartCountdown(ctx context.Context) {
	e.stopCountdown()
	e.startCountdown(ctx)
}

// Close stops the countdown and the stream. Safe to call at any point,
// including after a construction sequence that never completed.
func (e *Engine) Close() {
	e.stopCountdown()
	e.stream.Stop()
}
