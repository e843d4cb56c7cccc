package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TrianglesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tri_triangles_scanned_total",
		Help: "Number of triangle evaluations performed",
	})

	Opportunities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tri_opportunities_total",
		Help: "Detected opportunities by outcome status",
	}, []string{"status"})

	GateDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tri_gate_denials_total",
		Help: "Trade gate denials by reason",
	}, []string{"reason"})

	CooldownEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tri_cooldown_entries",
		Help: "Entries held in the cooldown cache (never evicted)",
	})

	BookFetchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tri_orderbook_fetch_seconds",
		Help:    "Time to fetch one order-book snapshot",
		Buckets: prometheus.DefBuckets,
	})

	ScanCycle = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tri_scan_cycle_seconds",
		Help:    "Full scan cycle duration",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})
)

func init() {
	prometheus.MustRegister(
		TrianglesScanned,
		Opportunities,
		GateDenials,
		CooldownEntries,
		BookFetchLatency,
		ScanCycle,
	)
}
