package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// QueueRecorder observes job-queue depth, per-stage duration, and claim
// contention — the counters the worker scheduler and pipeline stages
// report against, alongside the build-oriented Recorder above.
type QueueRecorder interface {
	SetQueueDepth(jobType string, depth int)
	ObserveStageDuration(stage string, d time.Duration)
	IncClaimContention()
	IncClaimSuccess(jobType string)
	IncJobOutcome(jobType string, outcome ResultLabel)
}

// NoopQueueRecorder discards all observations.
type NoopQueueRecorder struct{}

func (NoopQueueRecorder) SetQueueDepth(string, int)             {}
func (NoopQueueRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopQueueRecorder) IncClaimContention()                   {}
func (NoopQueueRecorder) IncClaimSuccess(string)                {}
func (NoopQueueRecorder) IncJobOutcome(string, ResultLabel)     {}

// PrometheusQueueRecorder implements QueueRecorder with Prometheus metrics.
type PrometheusQueueRecorder struct {
	once             sync.Once
	queueDepth       *prom.GaugeVec
	stageDuration    *prom.HistogramVec
	claimContention  prom.Counter
	claimSuccess     *prom.CounterVec
	jobOutcome       *prom.CounterVec
}

// NewPrometheusQueueRecorder constructs and registers queue metrics
// against reg (a nil registry creates a private one). Each call registers a
// new set, so a second call with the same registry panics on duplicate
// registration.
func NewPrometheusQueueRecorder(reg *prom.Registry) *PrometheusQueueRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusQueueRecorder{}
	pr.once.Do(func() {
		pr.queueDepth = prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "docgen",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of PENDING jobs by type.",
		}, []string{"job_type"})

		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docgen",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each generation pipeline stage.",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})

		pr.claimContention = prom.NewCounter(prom.CounterOpts{
			Namespace: "docgen",
			Subsystem: "queue",
			Name:      "claim_contention_total",
			Help:      "Number of claim attempts that lost the race for a job.",
		})

		pr.claimSuccess = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Subsystem: "queue",
			Name:      "claim_success_total",
			Help:      "Number of successful job claims by type.",
		}, []string{"job_type"})

		pr.jobOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docgen",
			Subsystem: "queue",
			Name:      "job_outcome_total",
			Help:      "Job outcomes by type and result.",
		}, []string{"job_type", "result"})

		reg.MustRegister(pr.queueDepth, pr.stageDuration, pr.claimContention, pr.claimSuccess, pr.jobOutcome)
	})
	return pr
}

func (p *PrometheusQueueRecorder) SetQueueDepth(jobType string, depth int) {
	p.queueDepth.WithLabelValues(jobType).Set(float64(depth))
}

func (p *PrometheusQueueRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusQueueRecorder) IncClaimContention() {
	p.claimContention.Inc()
}

func (p *PrometheusQueueRecorder) IncClaimSuccess(jobType string) {
	p.claimSuccess.WithLabelValues(jobType).Inc()
}

func (p *PrometheusQueueRecorder) IncJobOutcome(jobType string, outcome ResultLabel) {
	p.jobOutcome.WithLabelValues(jobType, string(outcome)).Inc()
}
