// Package metrics provides Prometheus metrics for the file sharing server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all server metrics.
var Registry = prometheus.NewRegistry()

// ServerMetrics holds all Prometheus metrics for the server.
type ServerMetrics struct {
	// Upload counters
	UploadsTotal     prometheus.Counter
	UploadBytesTotal prometheus.Counter
	ChunksTotal      prometheus.Counter

	// Download counters
	DownloadsTotal     prometheus.Counter
	DownloadBytesTotal prometheus.Counter

	// Sweep counters
	ExpiredFilesSweptTotal    prometheus.Counter
	ExpiredSessionsSweptTotal prometheus.Counter
	StaleChunkDirsSweptTotal  prometheus.Counter

	// Storage gauges, refreshed on each sweep
	StoredFiles prometheus.Gauge
	StoredBytes prometheus.Gauge
}

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// InitMetrics initializes all server metrics on the package registry.
func InitMetrics() *ServerMetrics {
	return &ServerMetrics{
		UploadsTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_uploads_total",
			Help: "Total completed uploads, direct and chunked",
		}),
		UploadBytesTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_upload_bytes_total",
			Help: "Total original bytes accepted by completed uploads",
		}),
		ChunksTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_chunks_total",
			Help: "Total chunks accepted, excluding duplicate redeliveries",
		}),

		DownloadsTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_downloads_total",
			Help: "Total successful downloads",
		}),
		DownloadBytesTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_download_bytes_total",
			Help: "Total plaintext bytes served by downloads",
		}),

		ExpiredFilesSweptTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_expired_files_swept_total",
			Help: "Total expired files removed by the sweeper",
		}),
		ExpiredSessionsSweptTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_expired_sessions_swept_total",
			Help: "Total expired upload sessions removed by the sweeper",
		}),
		StaleChunkDirsSweptTotal: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
			Name: "sharedrop_stale_chunk_dirs_swept_total",
			Help: "Total orphaned chunk directories removed by the sweeper",
		}),

		StoredFiles: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "sharedrop_stored_files",
			Help: "Number of file blobs currently in storage",
		}),
		StoredBytes: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
			Name: "sharedrop_stored_bytes",
			Help: "Total size of file blobs currently in storage",
		}),
	}
}
