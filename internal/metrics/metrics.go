package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	SnapshotsLoaded   Counter
	SnapshotsFailed   Counter
	StreamMessages    Counter
	DecodeFailed      Counter
	Upserts           Counter
	StreamDisconnects Counter
	QuoteUpdates      Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		SnapshotsLoaded:   n,
		SnapshotsFailed:   n,
		StreamMessages:    n,
		DecodeFailed:      n,
		Upserts:           n,
		StreamDisconnects: n,
		QuoteUpdates:      n,
	}
}
