package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "error"
	OutcomeRejected  = "rejected"
)

var (
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_submissions_total",
			Help: "Total number of diligence submissions by outcome",
		},
		[]string{"outcome"},
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diligence_report_duration_seconds",
			Help:    "Duration of report generation calls in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider", "outcome"},
	)

	UploadedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "diligence_uploaded_bytes_total",
			Help: "Total bytes written to blob storage",
		},
	)

	GenerationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diligence_generation_queue_depth",
			Help: "Report generation jobs waiting for a worker",
		},
	)

	ViewerStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diligence_viewer_streams_active",
			Help: "Number of open live submission streams",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diligence_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)
