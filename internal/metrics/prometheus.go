package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"sosinternet/internal/models"
)

const namespace = "sosinternet"

// Collector turns watchdog events into Prometheus series. It satisfies the
// watchdog sink interface.
type Collector struct {
	Checks      *prometheus.CounterVec
	Escalations *prometheus.CounterVec
	Reboots     *prometheus.CounterVec
	LoopErrors  prometheus.Counter
	Latency     prometheus.Histogram
	Connected   prometheus.Gauge
	Monitoring  prometheus.Gauge
}

// NewCollector registers the watchdog metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checks_total",
			Help:      "Connectivity checks by phase (check, recheck, verify) and result.",
		}, []string{"phase", "result"}),
		Escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Finished recovery sequences by outcome.",
		}, []string{"outcome"}),
		Reboots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reboots_total",
			Help:      "Router reboot attempts by result.",
		}, []string{"result"}),
		LoopErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_errors_total",
			Help:      "Unexpected errors recovered by the monitoring loop.",
		}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Round-trip time of successful connectivity probes.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 when the last connectivity check succeeded.",
		}),
		Monitoring: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring_active",
			Help:      "1 while the monitoring loop runs.",
		}),
	}
}

// Emit updates the series an event affects.
func (c *Collector) Emit(ev models.Event) {
	switch ev.Kind {
	case models.EventMonitoringStarted:
		c.Monitoring.Set(1)
	case models.EventMonitoringStopped:
		c.Monitoring.Set(0)
	case models.EventCheckSucceeded, models.EventCheckFailed:
		c.observe("check", ev)
	case models.EventConnectionRestored, models.EventRecheckFailed:
		c.observe("recheck", ev)
	case models.EventRestoredAfterReboot, models.EventNotRestored:
		c.observe("verify", ev)
	case models.EventRebootSucceeded:
		c.Reboots.WithLabelValues("success").Inc()
	case models.EventRebootFailed:
		c.Reboots.WithLabelValues("failure").Inc()
	case models.EventLoopError:
		c.LoopErrors.Inc()
	}

	switch ev.Kind {
	case models.EventConnectionRestored:
		c.Escalations.WithLabelValues("recovered").Inc()
	case models.EventRestoredAfterReboot:
		c.Escalations.WithLabelValues("restored_after_reboot").Inc()
	case models.EventNotRestored:
		c.Escalations.WithLabelValues("not_restored_after_reboot").Inc()
	}
}

func (c *Collector) observe(phase string, ev models.Event) {
	if ev.Status == nil {
		return
	}
	result := "down"
	if ev.Status.Connected {
		result = "up"
		c.Connected.Set(1)
	} else {
		c.Connected.Set(0)
	}
	c.Checks.WithLabelValues(phase, result).Inc()
	if ms := ev.Status.LatencyMs(); ms >= 0 && ev.Status.Connected {
		c.Latency.Observe(ms / 1000)
	}
}
