package render

import (
	"fmt"

	"go.uber.org/zap"

	"atlas-feed/internal/market"
	"atlas-feed/internal/ta"
)

// Text logs a one-line summary of the chart view on every redraw. It
// stands in for the drawing surface: the data core only promises a
// "redraw requested" signal, and this is the foreground consumer of it.
type Text struct {
	log       *zap.Logger
	emaWindow int
}

func NewText(log *zap.Logger, emaWindow int) *Text {
	return &Text{log: log, emaWindow: emaWindow}
}

func (t *Text) Render(v market.View) {
	if len(v.Candles) == 0 {
		t.log.Info("no chart data",
			zap.String("symbol", v.Symbol),
			zap.String("interval", v.Interval),
			zap.String("range", v.Range),
		)
		return
	}
	last := v.Candles[len(v.Candles)-1]
	fields := []zap.Field{
		zap.String("symbol", v.Symbol),
		zap.String("interval", v.Interval),
		zap.String("range", v.Range),
		zap.Int("candles", len(v.Candles)),
		zap.Float64("open", last.Open),
		zap.Float64("high", last.High),
		zap.Float64("low", last.Low),
		zap.Float64("close", last.Close),
		zap.String("close_in", FormatCountdown(v.SecondsToClose)),
	}
	if ema, ok := ta.LastEMA(ta.Closes(v.Candles), t.emaWindow); ok {
		fields = append(fields, zap.Float64("ema", ema))
	}
	t.log.Info("chart", fields...)
}

// RenderQuote logs one quote card update.
func (t *Text) RenderQuote(symbol string, q market.Quote) {
	sign := "+"
	if q.Change < 0 {
		sign = ""
	}
	t.log.Info("quote",
		zap.String("symbol", symbol),
		zap.Float64("price", q.Price),
		zap.String("change", fmt.Sprintf("%s%.2f (%s%.2f%%)", sign, q.Change, sign, q.ChangePct)),
	)
}

// FormatCountdown renders remaining seconds as mm:ss, matching the
// "Close in" label.
func FormatCountdown(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}
