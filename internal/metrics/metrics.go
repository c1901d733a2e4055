// Package metrics exposes Prometheus collectors for the progress server and
// the monitoring client.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/realtime-progress/internal/monitor"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	pushSessionsActive         prometheus.Gauge
	pushFramesTotal            *prometheus.CounterVec
	monitorPullsTotal          *prometheus.CounterVec
	monitorPushEventsTotal     *prometheus.CounterVec
	monitorPullActive          prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		pushSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "progress_push_sessions_active",
				Help: "Number of open push-channel connections.",
			},
		)

		pushFramesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_push_frames_total",
				Help: "Push-channel frames handled by the server, labeled by direction and event.",
			},
			[]string{"direction", "event"},
		)

		monitorPullsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_pulls_total",
				Help: "Pull requests issued by the monitor, labeled by result.",
			},
			[]string{"result"},
		)

		monitorPushEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monitor_push_events_total",
				Help: "Push-channel events observed by the monitor, labeled by kind.",
			},
			[]string{"kind"},
		)

		monitorPullActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "monitor_pull_active",
				Help: "1 while the monitor is polling the pull endpoint.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncPushSessions increments the open push session gauge.
func IncPushSessions() {
	pushSessionsActive.Inc()
}

// DecPushSessions decrements the open push session gauge.
func DecPushSessions() {
	pushSessionsActive.Dec()
}

// ObservePushFrame counts a frame received ("in") or sent ("out").
func ObservePushFrame(direction, event string) {
	pushFramesTotal.WithLabelValues(direction, event).Inc()
}

// MonitorObserver records monitor activity. It implements monitor.Observer.
type MonitorObserver struct{}

var _ monitor.Observer = MonitorObserver{}

// NewMonitorObserver initializes the collectors and returns an observer.
func NewMonitorObserver() MonitorObserver {
	Init()
	return MonitorObserver{}
}

// PushEvent counts a push-channel event.
func (MonitorObserver) PushEvent(kind monitor.EventKind) {
	monitorPushEventsTotal.WithLabelValues(string(kind)).Inc()
}

// PullResult counts a completed pull.
func (MonitorObserver) PullResult(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	monitorPullsTotal.WithLabelValues(result).Inc()
}

// PollingActive sets the polling gauge.
func (MonitorObserver) PollingActive(active bool) {
	if active {
		monitorPullActive.Set(1)
		return
	}
	monitorPullActive.Set(0)
}
