package recognition

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine activity in Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	enrollments     *prometheus.CounterVec
	recognitions    *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	rebuildDuration prometheus.Histogram
	rebuildFailures prometheus.Counter
	indexVectors    prometheus.Gauge
	indexIdentities prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_enrollments_total",
			Help: "Enrollment requests by outcome",
		}, []string{"outcome"}),
		recognitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_recognitions_total",
			Help: "Recognition requests by outcome",
		}, []string{"outcome"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "face_registry_extractions_total",
			Help: "Embedding extractions by result",
		}, []string{"result"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "face_registry_index_rebuild_duration_seconds",
			Help:    "Duration of successful index rebuilds",
			Buckets: prometheus.DefBuckets,
		}),
		rebuildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "face_registry_index_rebuild_failures_total",
			Help: "Index rebuilds that failed and left the previous snapshot in place",
		}),
		indexVectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_registry_index_vectors",
			Help: "Vectors in the published index snapshot",
		}),
		indexIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "face_registry_index_identities",
			Help: "Distinct identities in the published index snapshot",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.enrollments,
			m.recognitions,
			m.extractions,
			m.rebuildDuration,
			m.rebuildFailures,
			m.indexVectors,
			m.indexIdentities,
		)
	}
	return m
}

func (m *Metrics) enrollment(outcome string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recognition(outcome string) {
	if m == nil {
		return
	}
	m.recognitions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) extraction(result string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(result).Inc()
}

func (m *Metrics) rebuilt(d time.Duration, vectors, identities int) {
	if m == nil {
		return
	}
	m.rebuildDuration.Observe(d.Seconds())
	m.indexVectors.Set(float64(vectors))
	m.indexIdentities.Set(float64(identities))
}

func (m *Metrics) rebuildFailed() {
	if m == nil {
		return
	}
	m.rebuildFailures.Inc()
}

// outcome labels
const (
	outcomeSuccess           = "success"
	outcomeMatch             = "match"
	outcomeInvalid           = "invalid"
	outcomeInsufficientInput = "insufficient_input"
	outcomeNoFace            = "no_face"
	outcomeInsufficientFaces = "insufficient_faces"
	outcomeEmptyGallery      = "empty_gallery"
	outcomeNoMatch           = "no_match"
	outcomeError             = "error"

	extractionFace   = "face"
	extractionNoFace = "no_face"
	extractionFault  = "fault"
	extractionEmpty  = "empty"
)
