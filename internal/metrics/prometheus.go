package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "atlas_feed"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	snapshotsLoaded   prometheus.Counter
	snapshotsFailed   prometheus.Counter
	streamMessages    prometheus.Counter
	decodeFailed      prometheus.Counter
	upserts           prometheus.Counter
	streamDisconnects prometheus.Counter
	quoteUpdates      prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	snapshotsLoaded := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "snapshots_loaded_total",
		Help:      "Total number of history snapshots loaded into the store.",
	})
	snapshotsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "snapshots_failed_total",
		Help:      "Total number of history snapshot fetch failures.",
	})
	streamMessages := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "stream_messages_total",
		Help:      "Total number of messages received from candle streams.",
	})
	decodeFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "stream_decode_failed_total",
		Help:      "Total number of stream messages dropped as malformed.",
	})
	upserts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "candle_upserts_total",
		Help:      "Total number of candle upserts applied to the store.",
	})
	streamDisconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "stream_disconnects_total",
		Help:      "Total number of transport-level stream disconnects.",
	})
	quoteUpdates := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "quote_updates_total",
		Help:      "Total number of live quote updates applied.",
	})

	registry.MustRegister(snapshotsLoaded, snapshotsFailed, streamMessages, decodeFailed, upserts, streamDisconnects, quoteUpdates)

	m := &Metrics{
		SnapshotsLoaded:   promCounter{snapshotsLoaded},
		SnapshotsFailed:   promCounter{snapshotsFailed},
		StreamMessages:    promCounter{streamMessages},
		DecodeFailed:      promCounter{decodeFailed},
		Upserts:           promCounter{upserts},
		StreamDisconnects: promCounter{streamDisconnects},
		QuoteUpdates:      promCounter{quoteUpdates},
	}

	return &Prometheus{
		Metrics:           m,
		registry:          registry,
		snapshotsLoaded:   snapshotsLoaded,
		snapshotsFailed:   snapshotsFailed,
		streamMessages:    streamMessages,
		decodeFailed:      decodeFailed,
		upserts:           upserts,
		streamDisconnects: streamDisconnects,
		quoteUpdates:      quoteUpdates,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
