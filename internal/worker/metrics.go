package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	batchesTotal         *prometheus.CounterVec
	batchDuration        *prometheus.HistogramVec
	activeBatches        prometheus.Gauge
	photosProcessedTotal prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		batchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_batches_total",
			Help: "Total worker batches by source type and final status.",
		}, []string{"source_type", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_worker_batch_duration_seconds",
			Help:    "Total processing duration for each worker batch.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photoflow_worker_active_batches",
			Help: "Current number of active processing batches in the worker.",
		}),
		photosProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_worker_photos_processed_total",
			Help: "Total photos the executor finished, failed, or skipped.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_pixels_processed_total",
			Help: "Total output pixels across all successful photos.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_bytes_saved_total",
			Help: "Total bytes saved across all successful photos.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across batches.",
		}),
	}

	registry.MustRegister(
		m.batchesTotal,
		m.batchDuration,
		m.activeBatches,
		m.photosProcessedTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
