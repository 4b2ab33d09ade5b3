package market

import "time"

// Candle is one fixed-duration OHLCV trading period. OpenTime is the
// unique key within a Series; a streamed update for an in-progress
// period replaces the record at that key.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
