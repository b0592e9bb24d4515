package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tourney"

// Generation results
const (
	ResultGenerated   = "generated"
	ResultSkipped     = "skipped"
	ResultAlreadyDone = "already_generated"
	ResultFailed      = "failed"
)

// Report results
const (
	ResultAccepted  = "accepted"
	ResultRejected  = "rejected"
	ResultUnchanged = "unchanged"
)

// Decision kinds
const (
	DecidedPlayed = "played"
	DecidedBye    = "bye"
	DecidedEmpty  = "empty"
)

type Recorder struct {
	registry *prometheus.Registry

	bracketsGenerated *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	matchReports      *prometheus.CounterVec
	matchesDecided    *prometheus.CounterVec
	violations        *prometheus.CounterVec
	champions         prometheus.Counter
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		bracketsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brackets_generated_total",
			Help:      "Bracket generation attempts by result.",
		}, []string{"result"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bracket_generation_seconds",
			Help:      "Time spent writing a bracket, including the transaction commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		matchReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_reports_total",
			Help:      "Match result reports by result.",
		}, []string{"result"}),
		matchesDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_decided_total",
			Help:      "Matches closed, by how they were closed.",
		}, []string{"kind"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_violations_total",
			Help:      "Aborted transactions caused by inconsistent bracket state.",
		}, []string{"kind"}),
		champions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "champions_total",
			Help:      "Tournaments that produced a champion.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.bracketsGenerated,
		r.generationSeconds,
		r.matchReports,
		r.matchesDecided,
		r.violations,
		r.champions,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) BracketGeneration(result string, took time.Duration) {
	r.bracketsGenerated.WithLabelValues(result).Inc()
	if result == ResultGenerated {
		r.generationSeconds.Observe(took.Seconds())
	}
}

func (r *Recorder) MatchReport(result string) {
	r.matchReports.WithLabelValues(result).Inc()
}

func (r *Recorder) MatchesDecided(kind string, n int) {
	if n > 0 {
		r.matchesDecided.WithLabelValues(kind).Add(float64(n))
	}
}

func (r *Recorder) ConsistencyViolation(kind string) {
	r.violations.WithLabelValues(kind).Inc()
}

func (r *Recorder) Champion() {
	r.champions.Inc()
}
