package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"atlas-feed/internal/binance/rest"
	"atlas-feed/internal/binance/ws"
	"atlas-feed/internal/config"
	"atlas-feed/internal/market"
	"atlas-feed/internal/metrics"
	"atlas-feed/internal/render"
)

// App wires the chart engine, the quote tickers and the renderer. The
// engine and each ticker own their connections; App owns the foreground
// loop that reads views and renders.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	engine   *market.Engine
	quotes   []*market.QuoteTicker
	quoteCh  chan string
	renderer *render.Text
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	wsClient := ws.New(cfg.WS.URL, cfg.WS.PingInterval, log)
	transport := wsTransport{client: wsClient}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	engine := market.NewEngine(market.EngineConfig{
		Symbol:        cfg.Chart.Symbol,
		Interval:      cfg.Chart.Interval,
		Range:         cfg.Chart.Range,
		SnapshotLimit: cfg.Chart.SnapshotLimit,
		Retention:     cfg.Chart.Retention,
	}, restClient, transport, log, m)

	a := &App{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		prom:     prom,
		engine:   engine,
		quoteCh:  make(chan string, len(cfg.Quotes.Symbols)+1),
		renderer: render.NewText(log, cfg.Chart.EMAWindow),
	}
	for _, symbol := range cfg.Quotes.Symbols {
		sym := symbol
		ticker := market.NewQuoteTicker(sym, transport, cfg.Quotes.SparkPoints, func() {
			select {
			case a.quoteCh <- sym:
			default:
			}
		}, log, m)
		a.quotes = append(a.quotes, ticker)
	}
	return a, nil
}

// Engine exposes the chart engine for symbol/interval/range changes
// driven by the hosting UI.
func (a *App) Engine() *market.Engine {
	return a.engine
}

func (a *App) Run(ctx context.Context) error {
	if a.prom != nil {
		go a.serveMetrics(ctx)
	}

	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	defer a.engine.Close()

	for _, q := range a.quotes {
		if err := q.Start(ctx); err != nil {
			a.log.Warn("quote stream start failed", zap.String("symbol", q.Symbol()), zap.Error(err))
		}
	}
	defer func() {
		for _, q := range a.quotes {
			q.Stop()
		}
	}()

	// Foreground loop: delivery goroutines only signal; all reads and
	// rendering happen here.
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.engine.Redraw():
			a.renderer.Render(a.engine.View())
		case symbol := <-a.quoteCh:
			a.renderQuote(symbol)
		}
	}
}

func (a *App) renderQuote(symbol string) {
	for _, q := range a.quotes {
		if q.Symbol() != symbol {
			continue
		}
		if quote, ok := q.Quote(); ok {
			a.renderer.RenderQuote(symbol, quote)
		}
		return
	}
}

func (a *App) serveMetrics(ctx context.Context) {
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: a.prom.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Warn("metrics server failed", zap.Error(err))
	}
}

// wsTransport adapts the websocket client to the engine's transport
// interface.
type wsTransport struct {
	client *ws.Client
}

func (t wsTransport) Open(ctx context.Context, topic string) (market.MessageStream, error) {
	return t.client.Open(ctx, topic)
}
