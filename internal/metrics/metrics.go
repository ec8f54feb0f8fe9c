// Package metrics exposes the portal's Prometheus instrumentation. The
// metadata failure counter exists so operators can reconcile data blobs whose
// companion record never landed; the two writes are deliberately not
// transactional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadsTotal counts upload attempts by terminal outcome:
	// success, invalid, aborted, fatal.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "erportal",
		Name:      "uploads_total",
		Help:      "Upload attempts by terminal outcome.",
	}, []string{"outcome"})

	// UploadBytesReceived counts raw file bytes read from clients.
	UploadBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "erportal",
		Name:      "upload_bytes_received_total",
		Help:      "File bytes received across all upload attempts.",
	})

	// MetadataWriteFailures counts companion records that failed to write
	// after the data blob was already committed.
	MetadataWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "erportal",
		Name:      "metadata_write_failures_total",
		Help:      "Metadata companion writes that failed after a successful data upload.",
	})

	// NotifyFailures counts backend notifications that exhausted retries.
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "erportal",
		Name:      "notify_failures_total",
		Help:      "Backend upload notifications that failed.",
	})
)
