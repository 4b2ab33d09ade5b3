package ta

import (
	"github.com/markcheno/go-talib"

	"atlas-feed/internal/market"
)

// Closes extracts the close series from candles, oldest first.
func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// EMA returns the exponential moving average overlay for the close
// series. Inputs shorter than the window yield nil; talib pads the
// warm-up region with zeros, which the renderer must not plot.
func EMA(closes []float64, window int) []float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	return talib.Ema(closes, window)
}

// SMA is the simple moving average counterpart of EMA.
func SMA(closes []float64, window int) []float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}
	return talib.Sma(closes, window)
}

// LastEMA returns the most recent EMA value, or false when the series
// is too short for the window.
func LastEMA(closes []float64, window int) (float64, bool) {
	ema := EMA(closes, window)
	if len(ema) == 0 {
		return 0, false
	}
	return ema[len(ema)-1], true
}
