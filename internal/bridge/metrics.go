package bridge

import "github.com/tealfork/tickline-core/internal/engine"

// RunMetricsSink receives per-run duration measurements. Satisfied by
// *influxdb.Client.
type RunMetricsSink interface {
	WriteRunMetric(script string, status string, durationMS float64)
}

// MetricsPublisher forwards terminal run transitions to a time-series
// sink. It implements engine.EventPublisher; start events carry no
// duration and are not recorded.
type MetricsPublisher struct {
	sink RunMetricsSink
}

// NewMetricsPublisher creates a publisher writing run durations to sink.
func NewMetricsPublisher(sink RunMetricsSink) *MetricsPublisher {
	return &MetricsPublisher{sink: sink}
}

// PublishRunStarted is a no-op; only terminal transitions are measured.
func (p *MetricsPublisher) PublishRunStarted(*engine.RunRecord) {}

// PublishRunCompleted writes one duration point tagged with the run's
// script and terminal status.
func (p *MetricsPublisher) PublishRunCompleted(rec *engine.RunRecord) {
	var durMS float64
	if rec.DurationMS != nil {
		durMS = float64(*rec.DurationMS)
	}
	p.sink.WriteRunMetric(rec.Script, rec.Status, durMS)
}
