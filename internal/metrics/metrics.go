package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portfoliobinder"

var (
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploaded files by mode (page, attachment, rejected), kind (PDF, IMAGE, TEXT, ATTACHMENT) and result",
		},
		[]string{"mode", "type", "result"},
	)

	constructs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "constructs_total",
			Help:      "Portfolio constructions by result and whether a contents page was included",
		},
		[]string{"result", "toc"},
	)

	constructLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "construct_duration_seconds",
			Help:      "Duration of portfolio construction",
			Buckets:   prometheus.DefBuckets,
		},
	)

	outputPages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_pages",
			Help:      "Page count of constructed portfolios",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently held in memory",
		},
	)

	previewFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_failures_total",
			Help:      "Thumbnail renders that produced no image",
		},
	)

	archiveResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_total",
			Help:      "Archive writes by backend and result",
		},
		[]string{"backend", "result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(uploads, constructs, constructLatency, outputPages, activeSessions, previewFailures, archiveResults)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// uploadKinds bounds the type label of uploads_total.
var uploadKinds = map[string]bool{"PDF": true, "IMAGE": true, "TEXT": true, "ATTACHMENT": true}

// IncUpload counts one upload. Kinds outside the page set count as ATTACHMENT.
func IncUpload(mode, kind, result string) {
	if !uploadKinds[kind] {
		kind = "ATTACHMENT"
	}
	uploads.WithLabelValues(mode, kind, result).Inc()
}

func ObserveConstruct(result string, toc bool, pages int, dur time.Duration) {
	constructs.WithLabelValues(result, boolToStr(toc)).Inc()
	constructLatency.Observe(dur.Seconds())
	if result == "success" {
		outputPages.Observe(float64(pages))
	}
}

func SetActiveSessions(n int)           { activeSessions.Set(float64(n)) }
func IncPreviewFailure()                { previewFailures.Inc() }
func IncArchive(backend, result string) { archiveResults.WithLabelValues(backend, result).Inc() }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
