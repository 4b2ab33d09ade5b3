package market

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
)

func klineMsg(openTimeMS int64, open, high, low, close, volume string) json.RawMessage {
	msg := map[string]any{
		"e": "kline",
		"k": map[string]any{
			"t": openTimeMS,
			"i": "1h",
			"o": open,
			"h": high,
			"l": low,
			"c": close,
			"v": volume,
			"x": false,
		},
	}
	data, _ := json.Marshal(msg)
	return data
}

func TestParseKlineDelta(t *testing.T) {
	openTime := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	c, err := ParseKlineDelta(klineMsg(openTime.UnixMilli(), "103", "111.5", "102", "110", "42.7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.OpenTime.Equal(openTime) {
		t.Fatalf("expected open time %v, got %v", openTime, c.OpenTime)
	}
	if c.Open != 103 || c.High != 111.5 || c.Low != 102 || c.Close != 110 || c.Volume != 42.7 {
		t.Fatalf("unexpected candle values: %+v", c)
	}
}

func TestParseKlineDeltaRejectsWrongEvent(t *testing.T) {
	if _, err := ParseKlineDelta(json.RawMessage(`{"e":"trade"}`)); err == nil {
		t.Fatalf("expected error for non-kline event")
	}
}

func TestParseKlineDeltaRejectsBadPrice(t *testing.T) {
	if _, err := ParseKlineDelta(klineMsg(1, "abc", "1", "1", "1", "1")); err == nil {
		t.Fatalf("expected error for unparsable price")
	}
}

func TestIngestorAppliesDeltaAndNotifiesOnce(t *testing.T) {
	series := NewSeries(0)
	notified := 0
	in := NewIngestor(series, func() { notified++ }, zap.NewNop(), nil)

	in.Handle(klineMsg(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), "103", "111", "102", "110", "5"))
	if series.Len() != 1 {
		t.Fatalf("expected 1 candle after delta, got %d", series.Len())
	}
	if notified != 1 {
		t.Fatalf("expected exactly one notification, got %d", notified)
	}
}

func TestIngestorDropsMalformedAndContinues(t *testing.T) {
	series := NewSeries(0)
	notified := 0
	in := NewIngestor(series, func() { notified++ }, zap.NewNop(), nil)

	in.Handle(json.RawMessage(`{not json`))
	in.Handle(json.RawMessage(`{"e":"kline","k":{"t":0}}`))
	if series.Len() != 0 {
		t.Fatalf("malformed messages must not mutate the store")
	}
	if notified != 0 {
		t.Fatalf("malformed messages must not notify, got %d", notified)
	}

	in.Handle(klineMsg(60_000, "1", "2", "0.5", "1.5", "3"))
	if series.Len() != 1 {
		t.Fatalf("ingestion must continue after a bad message")
	}
	if notified != 1 {
		t.Fatalf("expected one notification after recovery, got %d", notified)
	}
}

func TestIngestorReplaceInProgressPeriod(t *testing.T) {
	series := NewSeries(0)
	in := NewIngestor(series, nil, zap.NewNop(), nil)

	open := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	in.Handle(klineMsg(open, "103", "108", "102", "105", "5"))
	in.Handle(klineMsg(open, "103", "111", "102", "110", "9"))

	if series.Len() != 1 {
		t.Fatalf("expected in-place replacement, got %d entries", series.Len())
	}
	last, _ := series.Last()
	if last.Close != 110 || last.Volume != 9 {
		t.Fatalf("expected replaced candle, got %+v", last)
	}
}
