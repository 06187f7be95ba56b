// Package metrics exposes Prometheus collectors for the harvest pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchAttemptsTotal *prometheus.CounterVec
	filesFetchedTotal  *prometheus.CounterVec
	batchesTotal       *prometheus.CounterVec
	uploadBytesTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Total number of download attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		filesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_files_fetched_total",
				Help: "Total number of non-empty files produced, labeled by source.",
			},
			[]string{"source"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_batches_total",
				Help: "Total number of batches handled, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		uploadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_upload_bytes_total",
				Help: "Total number of artifact bytes uploaded, labeled by source.",
			},
			[]string{"source"},
		)
	})
}

// ObserveFetchAttempt records one download attempt outcome
// ("success", "retry", "failure", or "skipped").
func ObserveFetchAttempt(outcome string) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFilesFetched adds the number of non-empty files a batch produced.
func ObserveFilesFetched(source string, n int) {
	if filesFetchedTotal == nil || n <= 0 {
		return
	}
	filesFetchedTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveBatch records one batch result ("done" or "skipped").
func ObserveBatch(source, result string) {
	if batchesTotal == nil {
		return
	}
	batchesTotal.WithLabelValues(source, result).Inc()
}

// ObserveUploadBytes adds the size of one uploaded artifact.
func ObserveUploadBytes(source string, n int64) {
	if uploadBytesTotal == nil || n <= 0 {
		return
	}
	uploadBytesTotal.WithLabelValues(source).Add(float64(n))
}
