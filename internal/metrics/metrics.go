package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes used as label values.
const (
	OutcomeOK            = "ok"
	OutcomeInvalid       = "invalid"
	OutcomeNoFace        = "no_face"
	OutcomeNotRecognized = "not_recognized"
	OutcomeConflict      = "conflict"
	OutcomeError         = "error"
)

// Metrics holds the service counters.
type Metrics struct {
	ScansTotal         *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	ScanDuration       prometheus.Histogram
}

// New registers the metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_scans_total",
			Help: "Attendance scans by outcome.",
		}, []string{"outcome"}),
		RegistrationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_registrations_total",
			Help: "Employee registrations by outcome.",
		}, []string{"outcome"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceattend_scan_duration_seconds",
			Help:    "End-to-end scan handling duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
