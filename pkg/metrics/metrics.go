// Package metrics exposes assistant activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-assistant/pkg/health"
	"github.com/teslashibe/go-assistant/pkg/session"
	"github.com/teslashibe/go-assistant/pkg/supervisor"
)

const namespace = "assistant"

// Metrics holds the assistant's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Sessions         *prometheus.CounterVec
	SessionDuration  prometheus.Histogram
	ActiveSessions   prometheus.Gauge
	Presses          *prometheus.CounterVec
	SpeakerConnected prometheus.Gauge
	SpeakerChecks    prometheus.Counter
	DiskFree         prometheus.Gauge
	Online           prometheus.Gauge
	TempFilesCleaned prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Voice command sessions by outcome",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from trigger to end of the spoken reply",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60},
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently running (0 or 1)",
		}),
		Presses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_presses_total",
			Help:      "Debounced button presses by whether they started a session",
		}, []string{"accepted"}),
		SpeakerConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speaker_connected",
			Help:      "1 when the last probe found the Bluetooth speaker connected",
		}),
		SpeakerChecks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaker_checks_total",
			Help:      "Connection probes recorded by the supervisor",
		}),
		DiskFree: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temp_disk_free_bytes",
			Help:      "Free space on the filesystem holding audio temp files",
		}),
		Online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_online",
			Help:      "1 when the last reachability probe succeeded",
		}),
		TempFilesCleaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temp_files_cleaned_total",
			Help:      "Audio temp files removed because disk space was low",
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnStart implements session.Observer.
func (m *Metrics) OnStart(s session.Session) {
	m.ActiveSessions.Set(1)
}

// OnFinish implements session.Observer.
func (m *Metrics) OnFinish(s session.Session) {
	m.ActiveSessions.Set(0)
	m.Sessions.WithLabelValues(string(s.Outcome)).Inc()
	m.SessionDuration.Observe(s.Duration().Seconds())
}

// Press records a debounced button press.
func (m *Metrics) Press(accepted bool) {
	label := "false"
	if accepted {
		label = "true"
	}
	m.Presses.WithLabelValues(label).Inc()
}

// ObserveSpeaker records a supervisor health update.
func (m *Metrics) ObserveSpeaker(h supervisor.Health) {
	m.SpeakerChecks.Inc()
	m.SpeakerConnected.Set(boolFloat(h.Connected))
}

// ObserveHealth records a health check report.
func (m *Metrics) ObserveHealth(r health.Report) {
	m.DiskFree.Set(float64(r.DiskFree))
	m.Online.Set(boolFloat(r.Online))
	if r.Cleaned > 0 {
		m.TempFilesCleaned.Add(float64(r.Cleaned))
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ session.Observer = (*Metrics)(nil)
