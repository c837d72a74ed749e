// Package metrics collects run statistics for recording and loopback sessions.
// There is no listener: a run can leave its numbers in a node-exporter
// textfile when it ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors for one process
type Metrics struct {
	registry *prometheus.Registry

	samplesWritten     *prometheus.CounterVec
	buffersTotal       *prometheus.CounterVec
	buffersAfterFinal  *prometheus.CounterVec
	loopbackDropped    prometheus.Counter
	recordingDuration  *prometheus.GaugeVec
	sessionErrorsTotal *prometheus.CounterVec
}

// New creates and registers the collectors on a private registry
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics()
	if err := m.registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.samplesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiort_samples_written_total",
			Help: "Samples written to the output file, across all channels",
		},
		[]string{"direction", "format"},
	)

	m.buffersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiort_buffers_total",
			Help: "Hardware buffers appended to the output file",
		},
		[]string{"direction", "format"},
	)

	m.buffersAfterFinal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiort_buffers_after_finalize_total",
			Help: "Buffers delivered by the driver after the file was finalized",
		},
		[]string{"direction", "format"},
	)

	m.loopbackDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audiort_loopback_dropped_bytes_total",
			Help: "Captured bytes dropped because the loopback queue was full",
		},
	)

	m.recordingDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiort_recording_duration_seconds",
			Help: "Wall time between stream start and finalize",
		},
		[]string{"direction"},
	)

	m.sessionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiort_session_errors_total",
			Help: "Sessions that ended with an error",
		},
		[]string{"stage"}, // stage: setup, runtime, finalize
	)
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.samplesWritten.Describe(ch)
	m.buffersTotal.Describe(ch)
	m.buffersAfterFinal.Describe(ch)
	m.loopbackDropped.Describe(ch)
	m.recordingDuration.Describe(ch)
	m.sessionErrorsTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.samplesWritten.Collect(ch)
	m.buffersTotal.Collect(ch)
	m.buffersAfterFinal.Collect(ch)
	m.loopbackDropped.Collect(ch)
	m.recordingDuration.Collect(ch)
	m.sessionErrorsTotal.Collect(ch)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Session returns an observer bound to one recording's labels. Its methods
// only touch atomic counters and are safe on the audio thread.
func (m *Metrics) Session(direction, format string) *SessionObserver {
	return &SessionObserver{
		samples:  m.samplesWritten.WithLabelValues(direction, format),
		buffers:  m.buffersTotal.WithLabelValues(direction, format),
		late:     m.buffersAfterFinal.WithLabelValues(direction, format),
		duration: m.recordingDuration.WithLabelValues(direction),
	}
}

func (m *Metrics) LoopbackDropped(n int) {
	m.loopbackDropped.Add(float64(n))
}

func (m *Metrics) SessionError(stage string) {
	m.sessionErrorsTotal.WithLabelValues(stage).Inc()
}

// WriteTextfile writes the registry in text exposition format. The parent
// directory is created if needed.
func (m *Metrics) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// SessionObserver implements wavsink.Observer
type SessionObserver struct {
	samples  prometheus.Counter
	buffers  prometheus.Counter
	late     prometheus.Counter
	duration prometheus.Gauge
}

func (o *SessionObserver) SamplesWritten(n int) {
	o.samples.Add(float64(n))
	o.buffers.Inc()
}

func (o *SessionObserver) AppendAfterFinalize() {
	o.late.Inc()
}

func (o *SessionObserver) RecordingDuration(d time.Duration) {
	o.duration.Set(d.Seconds())
}
