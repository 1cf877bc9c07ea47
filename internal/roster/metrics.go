package roster

import "github.com/prometheus/client_golang/prometheus"

var (
	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_console_roster_cycles_total",
			Help: "Roster fetch cycles by outcome.",
		},
		[]string{"outcome"},
	)
	pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_console_roster_cycle_duration_seconds",
			Help:    "Duration of roster fetch cycles.",
			Buckets: prometheus.DefBuckets,
		},
	)
	sessionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "support_console_sessions",
			Help: "Sessions per status as of the last successful roster cycle.",
		},
		[]string{"status"},
	)
	newArrivals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_console_roster_new_sessions_total",
			Help: "Waiting sessions detected as newly arrived.",
		},
	)
)

func init() {
	prometheus.MustRegister(pollCycles, pollDuration, sessionsByStatus, newArrivals)
}

func observeCycle(ok bool, seconds float64) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	pollCycles.WithLabelValues(outcome).Inc()
	pollDuration.Observe(seconds)
}

func setCounts(c Counts) {
	sessionsByStatus.WithLabelValues("waiting_admin").Set(float64(c.Waiting))
	sessionsByStatus.WithLabelValues("admin_handling").Set(float64(c.AdminHandling))
	sessionsByStatus.WithLabelValues("resolved").Set(float64(c.Resolved))
}

func addArrivals(n int) {
	newArrivals.Add(float64(n))
}
