package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// PrometheusSink exports the task's progress via Prometheus. It owns the
// collectors for the current completion value and update counts.
type PrometheusSink struct {
	current   prometheus.Gauge
	lastSeq   prometheus.Gauge
	updates   *prometheus.CounterVec
	completed prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_current_percent",
			Help: "Completion of the background task, 0-100.",
		}),
		lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_last_seq",
			Help: "Sequence number of the most recently accepted report.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "progress_updates_total",
			Help: "Progress reports delivered to sinks, partitioned by status class.",
		}, []string{"status_class"}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_completions_total",
			Help: "Reports that reached full completion.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.current,
		s.lastSeq,
		s.updates,
		s.completed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors from r. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, r progress.Report) error {
	class := r.Class()
	s.updates.WithLabelValues(string(class)).Inc()
	if class == progress.ClassComplete {
		s.completed.Inc()
	}
	s.current.Set(r.Progress)
	s.lastSeq.Set(float64(r.Seq))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
