package market

import (
	"sort"
	"time"
)

// Range tags accepted by SelectWindow.
const (
	Range5D  = "5D"
	Range1M  = "1M"
	Range3M  = "3M"
	Range6M  = "6M"
	RangeYTD = "YTD"
	Range1Y  = "1Y"
	Range5Y  = "5Y"
	RangeAll = "ALL"
)

// SelectWindow returns the trailing subrange of candles covered by the
// range tag. The anchor is the last candle's open time rather than the
// wall clock, so a stale series still windows against its own data.
// Month and year tags use calendar arithmetic. Unknown tags fall back
// to the full series; that permissiveness is deliberate.
func SelectWindow(candles []Candle, tag string) []Candle {
	if len(candles) == 0 {
		return nil
	}
	anchor := candles[len(candles)-1].OpenTime.UTC()

	var start time.Time
	switch tag {
	case Range5D:
		start = anchor.AddDate(0, 0, -5)
	case Range1M:
		start = anchor.AddDate(0, -1, 0)
	case Range3M:
		start = anchor.AddDate(0, -3, 0)
	case Range6M:
		start = anchor.AddDate(0, -6, 0)
	case RangeYTD:
		start = time.Date(anchor.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case Range1Y:
		start = anchor.AddDate(-1, 0, 0)
	case Range5Y:
		start = anchor.AddDate(-5, 0, 0)
	default:
		return candles
	}

	i := sort.Search(len(candles), func(i int) bool {
		return !candles[i].OpenTime.Before(start)
	})
	return candles[i:]
}
