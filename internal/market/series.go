package market

import (
	"errors"
	"sort"
	"sync"
)

// DefaultRetention caps how many candles a Series keeps before evicting
// the oldest entries.
const DefaultRetention = 1500

// ErrEmptySnapshot marks a snapshot load that produced no candles. The
// store stays valid and empty; callers surface a "no data" state rather
// than treating this as fatal.
var ErrEmptySnapshot = errors.New("market: empty snapshot")

// Series is an ordered, deduplicated collection of candles keyed by
// OpenTime, bounded to a retention cap. All mutations are serialized by
// an internal lock.
type Series struct {
	mu        sync.RWMutex
	candles   []Candle
	retention int
}

func NewSeries(retention int) *Series {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Series{retention: retention}
}

// LoadSnapshot replaces the entire series with the fetched history. The
// input does not need to be sorted or deduplicated; on duplicate keys
// the later entry wins.
func (s *Series) LoadSnapshot(candles []Candle) error {
	sorted := append([]Candle(nil), candles...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})
	deduped := sorted[:0]
	for _, c := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].OpenTime.Equal(c.OpenTime) {
			deduped[n-1] = c
			continue
		}
		deduped = append(deduped, c)
	}
	if len(deduped) > s.retention {
		deduped = deduped[len(deduped)-s.retention:]
	}

	s.mu.Lock()
	s.candles = append([]Candle(nil), deduped...)
	s.mu.Unlock()

	if len(deduped) == 0 {
		return ErrEmptySnapshot
	}
	return nil
}

// Upsert inserts or overwrites by OpenTime. Incoming keys are almost
// always >= the current maximum, but a late message is still placed at
// its sorted position. After an insert the series is trimmed from the
// front to the retention cap.
func (s *Series) Upsert(c Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.candles), func(i int) bool {
		return !s.candles[i].OpenTime.Before(c.OpenTime)
	})
	if i < len(s.candles) && s.candles[i].OpenTime.Equal(c.OpenTime) {
		s.candles[i] = c
		return
	}
	s.candles = append(s.candles, Candle{})
	copy(s.candles[i+1:], s.candles[i:])
	s.candles[i] = c
	if len(s.candles) > s.retention {
		trimmed := make([]Candle, s.retention)
		copy(trimmed, s.candles[len(s.candles)-s.retention:])
		s.candles = trimmed
	}
}

// Snapshot returns a point-in-time copy safe to iterate while upserts
// continue on another goroutine.
func (s *Series) Snapshot() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Candle(nil), s.candles...)
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// Last returns the most recent candle, or false for an empty series.
func (s *Series) Last() (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
