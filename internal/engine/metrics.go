package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the keeper's operational counters.
type Metrics struct {
	ActivePockets  prometheus.Gauge
	TriggersTotal  *prometheus.CounterVec // labelled by outcome
	SwapsTotal     prometheus.Counter
	SwapVolume     *prometheus.CounterVec // native units, labelled by mint
	TriggerErrors  prometheus.Counter
	FeedPriceReads prometheus.Counter // mid prices served from the ws cache
	RestPriceReads prometheus.Counter // mid prices fetched over REST
}

// NewMetrics registers the keeper metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivePockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pocket_keeper",
			Name:      "active_pockets",
			Help:      "Number of pockets currently in the Active state.",
		}),
		TriggersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "triggers_total",
			Help:      "Trigger evaluations by outcome (proceed, skip, force_close).",
		}, []string{"outcome"}),
		SwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "swaps_total",
			Help:      "Confirmed swap executions.",
		}),
		SwapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "swap_volume_native",
			Help:      "Cumulative spent volume in native units, by mint.",
		}, []string{"mint"}),
		TriggerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "trigger_errors_total",
			Help:      "Triggers that failed with an error.",
		}),
		FeedPriceReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "feed_price_reads_total",
			Help:      "Mid-price reads served from the websocket cache.",
		}),
		RestPriceReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pocket_keeper",
			Name:      "rest_price_reads_total",
			Help:      "Mid-price reads that fell back to REST.",
		}),
	}

	reg.MustRegister(
		m.ActivePockets,
		m.TriggersTotal,
		m.SwapsTotal,
		m.SwapVolume,
		m.TriggerErrors,
		m.FeedPriceReads,
		m.RestPriceReads,
	)
	return m
}
