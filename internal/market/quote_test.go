package market

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func tickerMsg(price, change, pct string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"e":"24hrTicker","c":%q,"p":%q,"P":%q}`, price, change, pct))
}

func TestParseTickerDelta(t *testing.T) {
	q, err := ParseTickerDelta(tickerMsg("64250.10", "-1200.50", "-1.83"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Price != 64250.10 || q.Change != -1200.50 || q.ChangePct != -1.83 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestParseTickerDeltaAtomicOnBadField(t *testing.T) {
	if _, err := ParseTickerDelta(tickerMsg("64250.10", "oops", "-1.83")); err == nil {
		t.Fatalf("expected error when one field is malformed")
	}
}

func TestQuoteTickerUpdatesWholeRecord(t *testing.T) {
	transport := &fakeTransport{}
	notified := make(chan struct{}, 16)
	q := NewQuoteTicker("btcusdt", transport, 0, func() { notified <- struct{}{} }, zap.NewNop(), nil)

	if q.Symbol() != "BTCUSDT" {
		t.Fatalf("expected uppercased symbol, got %s", q.Symbol())
	}
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	stream := transport.last()
	if stream.topic != "btcusdt@ticker" {
		t.Fatalf("expected ticker topic, got %s", stream.topic)
	}

	stream.msgs <- tickerMsg("100.5", "2.5", "2.55")
	<-notified
	quote, ok := q.Quote()
	if !ok {
		t.Fatalf("expected quote after first message")
	}
	if quote.Price != 100.5 || quote.Change != 2.5 || quote.ChangePct != 2.55 {
		t.Fatalf("unexpected quote: %+v", quote)
	}

	// A malformed message leaves the previous record fully intact.
	stream.msgs <- tickerMsg("101.0", "bad", "3.0")
	waitFor(t, func() bool {
		got, _ := q.Quote()
		return got.Price == 100.5
	})
	quote, _ = q.Quote()
	if quote.Change != 2.5 || quote.ChangePct != 2.55 {
		t.Fatalf("partial update observed: %+v", quote)
	}
}

func TestQuoteTickerSparkBounded(t *testing.T) {
	transport := &fakeTransport{}
	notified := make(chan struct{}, 64)
	q := NewQuoteTicker("BTCUSDT", transport, 5, func() { notified <- struct{}{} }, zap.NewNop(), nil)
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer q.Stop()

	stream := transport.last()
	for i := 0; i < 9; i++ {
		stream.msgs <- tickerMsg(fmt.Sprintf("%d", 100+i), "1", "1")
	}
	for i := 0; i < 9; i++ {
		<-notified
	}
	spark := q.Spark()
	if len(spark) != 5 {
		t.Fatalf("expected spark capped at 5, got %d", len(spark))
	}
	if spark[0] != 104 || spark[4] != 108 {
		t.Fatalf("expected most recent prices retained, got %v", spark)
	}
}

func TestQuoteTickerBeforeFirstMessage(t *testing.T) {
	q := NewQuoteTicker("BTCUSDT", &fakeTransport{}, 0, nil, zap.NewNop(), nil)
	if _, ok := q.Quote(); ok {
		t.Fatalf("expected no quote before first message")
	}
	if len(q.Spark()) != 0 {
		t.Fatalf("expected empty spark before first message")
	}
}
