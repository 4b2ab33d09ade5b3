package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"atlas-feed/internal/metrics"
)

// klineEvent is the Binance kline stream envelope. OHLCV values arrive
// as decimal strings.
type klineEvent struct {
	Event string `json:"e"`
	Kline struct {
		OpenTime int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Final    bool   `json:"x"`
	} `json:"k"`
}

// ParseKlineDelta decodes one kline stream message into a Candle.
func ParseKlineDelta(msg json.RawMessage) (Candle, error) {
	var ev klineEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return Candle{}, fmt.Errorf("decode kline event: %w", err)
	}
	if ev.Event != "kline" {
		return Candle{}, fmt.Errorf("unexpected event type %q", ev.Event)
	}
	if ev.Kline.OpenTime <= 0 {
		return Candle{}, errors.New("kline event missing open time")
	}
	k := ev.Kline
	open, err := parsePrice(k.Open, "open")
	if err != nil {
		return Candle{}, err
	}
	high, err := parsePrice(k.High, "high")
	if err != nil {
		return Candle{}, err
	}
	low, err := parsePrice(k.Low, "low")
	if err != nil {
		return Candle{}, err
	}
	cls, err := parsePrice(k.Close, "close")
	if err != nil {
		return Candle{}, err
	}
	vol, err := parsePrice(k.Volume, "volume")
	if err != nil {
		return Candle{}, err
	}
	return Candle{
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}

func parsePrice(raw, field string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return f, nil
}

// Ingestor normalizes kline stream messages and applies them to a
// Series. One malformed message is dropped and logged; it never ends
// the stream. Each applied delta requests at most one redraw.
type Ingestor struct {
	series  *Series
	notify  func()
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewIngestor(series *Series, notify func(), log *zap.Logger, m *metrics.Metrics) *Ingestor {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Ingestor{series: series, notify: notify, log: log, metrics: m}
}

func (in *Ingestor) Handle(msg json.RawMessage) {
	in.metrics.StreamMessages.Inc()
	c, err := ParseKlineDelta(msg)
	if err != nil {
		in.metrics.DecodeFailed.Inc()
		in.log.Debug("dropped malformed kline message", zap.Error(err))
		return
	}
	in.series.Upsert(c)
	in.metrics.Upserts.Inc()
	if in.notify != nil {
		in.notify()
	}
}
