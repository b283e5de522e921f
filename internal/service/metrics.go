package service

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce         sync.Once
	formSavesTotal      *prometheus.CounterVec
	formSaveDuration    prometheus.Histogram
	formUploadsTotal    prometheus.Counter
	pageOperationsTotal *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		formSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "form_builder",
			Subsystem: "forms",
			Name:      "saves_total",
			Help:      "Total number of form saves partitioned by outcome.",
		}, []string{"outcome"})

		formSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "form_builder",
			Subsystem: "forms",
			Name:      "save_duration_seconds",
			Help:      "Duration of form saves in seconds.",
			Buckets:   prometheus.DefBuckets,
		})

		formUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "form_builder",
			Subsystem: "forms",
			Name:      "attachments_stored_total",
			Help:      "Total number of attachments stored by committed saves.",
		})

		pageOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "form_builder",
			Subsystem: "pages",
			Name:      "operations_total",
			Help:      "Total number of page lifecycle operations partitioned by operation and outcome.",
		}, []string{"operation", "outcome"})
	})
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsValidationError(err), errors.Is(err, ErrUnresolvedAttachment):
		return "invalid"
	case errors.Is(err, ErrDuplicateTitle):
		return "conflict"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrFormNotFound), errors.Is(err, ErrPageNotFound):
		return "rejected"
	default:
		return "error"
	}
}

func observeSave(err error, started time.Time, uploads int) {
	initMetrics()
	formSavesTotal.WithLabelValues(outcomeLabel(err)).Inc()
	formSaveDuration.Observe(time.Since(started).Seconds())
	if err == nil && uploads > 0 {
		formUploadsTotal.Add(float64(uploads))
	}
}

func observePageOperation(operation string, err error) {
	initMetrics()
	pageOperationsTotal.WithLabelValues(operation, outcomeLabel(err)).Inc()
}
