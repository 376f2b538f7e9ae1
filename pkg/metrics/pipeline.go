package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records line item pipeline activity.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	priceOutcomes *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "line_item_transitions",
		Help: "Line item status transitions.",
	}, []string{"from", "to"})
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_verdicts",
		Help: "Validation verdicts by outcome.",
	}, []string{"verdict"})
	priceOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_check_outcomes",
		Help: "Price check outcomes by band comparison.",
	}, []string{"outcome"})
	reg.MustRegister(stageDuration, transitions, verdicts, priceOutcomes)
	return &PipelineMetrics{
		stageDuration: stageDuration,
		transitions:   transitions,
		verdicts:      verdicts,
		priceOutcomes: priceOutcomes,
	}
}

// ObserveStage records the duration for the named pipeline stage.
func (p *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncTransition increments the transition counter for a status change.
func (p *PipelineMetrics) IncTransition(from, to string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncVerdict increments the verdict counter.
func (p *PipelineMetrics) IncVerdict(verdict string) {
	if p == nil || p.verdicts == nil {
		return
	}
	p.verdicts.WithLabelValues(normalizeLabel(verdict)).Inc()
}

// IncPriceOutcome increments the price check outcome counter.
func (p *PipelineMetrics) IncPriceOutcome(outcome string) {
	if p == nil || p.priceOutcomes == nil {
		return
	}
	p.priceOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}
