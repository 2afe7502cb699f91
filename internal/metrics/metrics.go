package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the checkpoint collectors. It satisfies the pipeline and
// actuator observer interfaces.
type Metrics struct {
	frames           *prometheus.CounterVec
	detections       prometheus.Counter
	perceptionErrors *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	gateState        *prometheus.GaugeVec
	sequences        *prometheus.CounterVec
	sequenceDuration prometheus.Histogram
	triggersRejected prometheus.Counter

	mu        sync.Mutex
	lastState string
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_frames_total",
			Help: "Frames by pipeline stage (read, skipped, absent, processed).",
		}, []string{"stage"}),
		detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkpoint_plate_detections_total",
			Help: "Plate regions returned by the detector.",
		}),
		perceptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_perception_errors_total",
			Help: "Per-frame failures that were skipped.",
		}, []string{"stage"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_resolutions_total",
			Help: "Resolved plates by authorization outcome.",
		}, []string{"outcome"}),
		gateState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "checkpoint_gate_state",
			Help: "1 for the current barrier state, 0 otherwise.",
		}, []string{"state"}),
		sequences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkpoint_gate_sequences_total",
			Help: "Open/hold/rest sequences by result.",
		}, []string{"result"}),
		sequenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkpoint_gate_sequence_seconds",
			Help:    "Duration of a full gate sequence.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		triggersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkpoint_gate_triggers_rejected_total",
			Help: "Triggers rejected because the gate queue was full.",
		}),
	}

	reg.MustRegister(
		m.frames,
		m.detections,
		m.perceptionErrors,
		m.resolutions,
		m.gateState,
		m.sequences,
		m.sequenceDuration,
		m.triggersRejected,
	)
	return m
}

func (m *Metrics) Frame(stage string) {
	m.frames.WithLabelValues(stage).Inc()
}

func (m *Metrics) Detections(n int) {
	m.detections.Add(float64(n))
}

func (m *Metrics) PerceptionError(stage string) {
	m.perceptionErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Resolution(outcome string) {
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GateState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastState != "" && m.lastState != state {
		m.gateState.WithLabelValues(m.lastState).Set(0)
	}
	m.gateState.WithLabelValues(state).Set(1)
	m.lastState = state
}

func (m *Metrics) Sequence(result string, elapsed time.Duration) {
	m.sequences.WithLabelValues(result).Inc()
	m.sequenceDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) TriggerRejected() {
	m.triggersRejected.Inc()
}
