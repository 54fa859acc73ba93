// Package metrics provides Prometheus metrics for the library and ingestion paths.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/quill/internal/apperr"
)

var (
	// Library metrics
	LibraryOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_library_operations_total",
			Help: "Total number of library operations",
		},
		[]string{"op", "category", "status"},
	)

	LibraryOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_library_operation_duration_seconds",
			Help:    "Duration of library operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	BlobBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_blob_bytes_written_total",
			Help: "Total bytes written to the blob store",
		},
		[]string{"category"},
	)

	// Ingestion metrics
	PartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_ingest_parts_total",
			Help: "Total number of files converted into parts",
		},
		[]string{"ext", "variant", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quill_ingest_conversion_duration_seconds",
			Help:    "Time taken to convert a file into a part",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"ext"},
	)

	StaleResultsDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_ingest_stale_results_total",
			Help: "Asynchronous results dropped because the selection moved on",
		},
		[]string{"slot"},
	)

	// Notification metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_events_published_total",
			Help: "Total number of library change events published",
		},
		[]string{"kind"},
	)
)

// Status maps an operation error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, apperr.ErrExtraction):
		return "extraction"
	case errors.Is(err, apperr.ErrCorruption):
		return "corruption"
	case errors.Is(err, apperr.ErrStorageUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// RecordLibraryOp records one library operation.
func RecordLibraryOp(op, category string, err error, duration time.Duration) {
	LibraryOpsTotal.WithLabelValues(op, category, Status(err)).Inc()
	LibraryOpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordConversion records one file-to-part conversion.
func RecordConversion(ext, variant string, err error, duration time.Duration) {
	if ext == "" {
		ext = "none"
	}
	PartsTotal.WithLabelValues(ext, variant, Status(err)).Inc()
	ConversionDuration.WithLabelValues(ext).Observe(duration.Seconds())
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
