// Package metrics exports pipeline telemetry through Prometheus collectors.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	obserrors "github.com/target/intake-pipeline/internal/observability/errors"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

const namespace = "intake"

// JobMetric captures details about a job lifecycle event.
type JobMetric struct {
	Kind       string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// Recorder owns the pipeline collectors. A nil *Recorder records nothing.
type Recorder struct {
	jobTransitions *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	intakeOutcomes *prometheus.CounterVec
	reaperRows     *prometheus.CounterVec
}

// NewRecorder registers the pipeline collectors with reg (the default registerer when nil).
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job lifecycle transitions by kind and result.",
		}, []string{"kind", "transition", "result", "error_class"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler run time per job attempt.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind", "result"}),
		intakeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Form submissions by form and outcome.",
		}, []string{"form", "outcome"}),
		reaperRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_rows_total",
			Help:      "Rows touched by the reaper per task.",
		}, []string{"task"}),
	}

	if err := register(reg, &r.jobTransitions); err != nil {
		return nil, err
	}
	if err := register(reg, &r.jobDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &r.intakeOutcomes); err != nil {
		return nil, err
	}
	if err := register(reg, &r.reaperRows); err != nil {
		return nil, err
	}
	return r, nil
}

// register adds c to reg, reusing an already registered collector of the same shape.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			*c = existing
			return nil
		}
	}
	return fmt.Errorf("register metric: %w", err)
}

// JobLifecycle records a job transition and, when set, its duration.
func (r *Recorder) JobLifecycle(in JobMetric) {
	if r == nil {
		return
	}
	class := ""
	if in.Err != nil && in.Result == ResultError {
		class = obserrors.Classify(in.Err)
	}
	r.jobTransitions.WithLabelValues(in.Kind, in.Transition, in.Result, class).Inc()
	if in.Duration > 0 {
		r.jobDuration.WithLabelValues(in.Kind, in.Result).Observe(in.Duration.Seconds())
	}
}

// IntakeOutcome counts one form submission.
func (r *Recorder) IntakeOutcome(form, outcome string) {
	if r == nil {
		return
	}
	r.intakeOutcomes.WithLabelValues(form, outcome).Inc()
}

// ReaperRows adds the rows a reaper task touched.
func (r *Recorder) ReaperRows(task string, n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.reaperRows.WithLabelValues(task).Add(float64(n))
}
