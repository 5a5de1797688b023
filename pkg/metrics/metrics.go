package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "vmsandbox"

	Sandbox = "sandbox"
	Storage = "storage"

	// Acquire outcome label values
	AcquireAcquired  = "acquired"
	AcquireClosed    = "closed"
	AcquireCancelled = "cancelled"

	// Resolution outcome label values
	ResolutionResolved = "resolved"
	ResolutionPruned   = "pruned"
	ResolutionMissing  = "missing"
	ResolutionError    = "error"
)

// Labels holds constant labels applied to all metrics. These distinguish
// metrics from multiple node instances.
type Labels struct {
	ChainID     uint64 // chain ID of the ledger this node serves
	Environment string // deployment environment (e.g., "production", "staging")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.ChainID != 0 {
		labels["chain_id"] = strconv.FormatUint(l.ChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	return labels
}

type Metrics struct {
	// Admission control
	availablePermits prometheus.Gauge
	acquireOutcomes  *prometheus.CounterVec
	acquireDuration  prometheus.Histogram

	// VM call execution
	vmCallsInFlight prometheus.Gauge
	vmCallDuration  prometheus.Histogram

	// Block context resolution
	resolutionOutcomes *prometheus.CounterVec

	// Storage access
	storageQueryDuration *prometheus.HistogramVec

	// Retention boundary observed by the watchdog
	firstRetainedBlock prometheus.Gauge
	firstRetainedBatch prometheus.Gauge
}

// New creates a new Metrics instance and registers all metrics with the
// provided registerer. Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to
// all metrics. Useful when running multiple node instances and filtering by
// dimensions like chain_id.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		availablePermits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "available_permits",
			Help:      "Free VM execution slots sampled on every acquisition attempt",
		}),
		acquireOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "permit_acquires_total",
			Help:      "Total permit acquisition attempts by outcome",
		}, []string{"outcome"}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "permit_acquire_duration_seconds",
			Help:      "Time spent waiting for a VM execution permit",
			// Buckets emphasize the short waits expected under normal load:
			// 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		vmCallsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "vm_calls_in_flight",
			Help:      "Number of VM calls currently executing",
		}),
		vmCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "vm_call_duration_seconds",
			Help:      "End-to-end duration of a gated VM call",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		resolutionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sandbox,
			Name:      "block_resolutions_total",
			Help:      "Total block context resolutions by outcome",
		}, []string{"outcome"}),
		storageQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Storage,
			Name:      "query_duration_seconds",
			Help:      "Ledger storage query duration by query name",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"query"}),
		firstRetainedBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Storage,
			Name:      "first_retained_block",
			Help:      "Lowest block number still present in local storage",
		}),
		firstRetainedBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Storage,
			Name:      "first_retained_batch",
			Help:      "Lowest batch number still present in local storage",
		}),
	}

	err := errors.Join(
		reg.Register(m.availablePermits),
		reg.Register(m.acquireOutcomes),
		reg.Register(m.acquireDuration),
		reg.Register(m.vmCallsInFlight),
		reg.Register(m.vmCallDuration),
		reg.Register(m.resolutionOutcomes),
		reg.Register(m.storageQueryDuration),
		reg.Register(m.firstRetainedBlock),
		reg.Register(m.firstRetainedBatch),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// SetAvailablePermits records the free slot count sampled before an
// acquisition attempt.
func (m *Metrics) SetAvailablePermits(available int64) {
	if m == nil {
		return
	}
	m.availablePermits.Set(float64(available))
}

// RecordAcquire records a permit acquisition attempt outcome with its wait
// duration.
func (m *Metrics) RecordAcquire(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.acquireOutcomes.WithLabelValues(outcome).Inc()
	if outcome == AcquireAcquired {
		m.acquireDuration.Observe(durationSeconds)
	}
}

// IncVMCallsInFlight increments the in-flight VM call gauge.
func (m *Metrics) IncVMCallsInFlight() {
	if m == nil {
		return
	}
	m.vmCallsInFlight.Inc()
}

// DecVMCallsInFlight decrements the in-flight VM call gauge.
func (m *Metrics) DecVMCallsInFlight() {
	if m == nil {
		return
	}
	m.vmCallsInFlight.Dec()
}

// ObserveVMCallDuration records an end-to-end gated VM call duration.
func (m *Metrics) ObserveVMCallDuration(seconds float64) {
	if m == nil {
		return
	}
	m.vmCallDuration.Observe(seconds)
}

// RecordResolution records a block context resolution outcome.
func (m *Metrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutionOutcomes.WithLabelValues(outcome).Inc()
}

// SetRetentionBoundary records the current retention boundary.
func (m *Metrics) SetRetentionBoundary(firstBlock, firstBatch uint64) {
	if m == nil {
		return
	}
	m.firstRetainedBlock.Set(float64(firstBlock))
	m.firstRetainedBatch.Set(float64(firstBatch))
}

// ObserveStorageQuery records a ledger storage query duration.
func (m *Metrics) ObserveStorageQuery(query string, seconds float64) {
	if m == nil {
		return
	}
	m.storageQueryDuration.WithLabelValues(query).Observe(seconds)
}
