package metrics

import (
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "sandboxtest"
)

// Launch results
const (
	ResultPass     = "pass"
	ResultFail     = "fail"
	ResultSkip     = "skip"
	ResultProtocol = "protocol_error"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z_ ]+`)

	launchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "launches_total",
		Help:      "Count of sandboxed test launches",
	}, []string{
		"image",
		"result",
	})

	launchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "launch_duration_seconds",
		Help:      "Wall clock time of sandboxed test launches that reported a result, container start included",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
	}, []string{
		"image",
	})

	protocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "protocol_errors_total",
		Help:      "Count of sandbox launches aborted by a protocol violation",
	}, []string{
		"kind",
	})
)

// kindToLabel tries to make a free-form kind a valid Prometheus label value
func kindToLabel(kind string) string {
	clean := nonAlphanumericRegex.ReplaceAllString(kind, "")
	clean = strings.ReplaceAll(strings.TrimSpace(clean), " ", "_")
	if clean == "" {
		return "unknown"
	}
	return strings.ToLower(clean)
}

// RecordLaunch counts a launch that produced a result and observes its duration
func RecordLaunch(image string, result string, duration time.Duration) {
	launchesTotal.WithLabelValues(image, result).Inc()
	launchDuration.WithLabelValues(image).Observe(duration.Seconds())
}

// RecordProtocolError counts an aborted launch. The duration histogram is left
// alone since an aborted launch has no comparable run time.
func RecordProtocolError(image string, kind string) {
	launchesTotal.WithLabelValues(image, ResultProtocol).Inc()
	protocolErrorsTotal.WithLabelValues(kindToLabel(kind)).Inc()
}

// WriteTextfile writes every registered metric to path in the text exposition
// format, for node_exporter's textfile collector or a CI artifact
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
