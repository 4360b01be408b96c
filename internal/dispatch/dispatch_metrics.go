package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the dispatch subsystem.
type Metrics struct {
	SignalsTotal     *prometheus.CounterVec
	IncidentsTotal   *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	AssignmentsTotal prometheus.Counter
	RacesLostTotal   prometheus.Counter
	NoCandidates     prometheus.Counter
	SweepExpiries    prometheus.Counter
	Redispatches     prometheus.Counter
	FanoutSize       prometheus.Histogram
	OpenIncidents    prometheus.Gauge
	NotifyFailures   prometheus.Counter
}

// NewMetrics registers and returns dispatch metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_signals_total",
			Help: "Signals received by type and outcome.",
		}, []string{"type", "outcome"}),
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_incidents_total",
			Help: "Incidents opened by priority at creation.",
		}, []string{"priority"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_guard_alerts_total",
			Help: "Guard alert transitions by resulting status.",
		}, []string{"status"}),
		AssignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_assignments_total",
			Help: "Assignments created.",
		}),
		RacesLostTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_ack_races_lost_total",
			Help: "Acknowledgements rejected because another guard won the race.",
		}),
		NoCandidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_no_candidates_total",
			Help: "Dispatch attempts that exhausted the guard search with zero candidates.",
		}),
		SweepExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_sweep_expiries_total",
			Help: "Alerts expired by the timeout sweep.",
		}),
		Redispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_redispatches_total",
			Help: "Undispatched incidents retried after guard availability changed.",
		}),
		FanoutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_dispatch_fanout",
			Help:    "Alerts sent per dispatch cycle.",
			Buckets: prometheus.LinearBuckets(0, 1, 8), // 0 .. 7
		}),
		OpenIncidents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_open_incidents",
			Help: "Incidents not yet resolved.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_notify_failures_total",
			Help: "Notification publishes that failed (engine state unaffected).",
		}),
	}

	reg.MustRegister(
		m.SignalsTotal,
		m.IncidentsTotal,
		m.AlertsTotal,
		m.AssignmentsTotal,
		m.RacesLostTotal,
		m.NoCandidates,
		m.SweepExpiries,
		m.Redispatches,
		m.FanoutSize,
		m.OpenIncidents,
		m.NotifyFailures,
	)

	return m
}
