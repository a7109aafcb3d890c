package metrics

import (
	"net/http"
	"time"

	"github.com/RyanBlaney/dash-abr-client/pkg/stream/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds Prometheus metrics for playback sessions. It satisfies the player
// observer contract, so it can be handed to the manager directly.
type Collector struct {
	registry          *prometheus.Registry
	segmentsTotal     *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec
	throughput        *prometheus.HistogramVec
	downloadSeconds   *prometheus.HistogramVec
	qualitySwitches   *prometheus.CounterVec
	quality           *prometheus.GaugeVec
	bitrate           *prometheus.GaugeVec
	bufferFill        *prometheus.GaugeVec
	stallsTotal       *prometheus.CounterVec
	stallSecondsTotal *prometheus.CounterVec
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers Prometheus metrics for the client.
func New() *Collector {
	registry := prometheus.NewRegistry()
	labels := []string{"media_type"}

	c := &Collector{
		registry: registry,
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_segments_downloaded_total",
			Help: "Total number of media segments downloaded",
		}, labels),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_segment_bytes_total",
			Help: "Total number of segment bytes downloaded",
		}, labels),
		throughput: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "abr_segment_throughput_bps",
			Help:    "Measured throughput of segment downloads in bits per second",
			Buckets: prometheus.ExponentialBuckets(64000, 2, 12),
		}, labels),
		downloadSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "abr_segment_download_seconds",
			Help:    "Time taken to download a segment",
			Buckets: prometheus.DefBuckets,
		}, labels),
		qualitySwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_quality_switches_total",
			Help: "Total number of representation switches",
		}, []string{"media_type", "direction"}),
		quality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_quality_index",
			Help: "Index of the selected representation",
		}, labels),
		bitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_selected_bitrate_bps",
			Help: "Bandwidth of the selected representation",
		}, labels),
		bufferFill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "abr_buffer_fill_percent",
			Help: "Playback buffer fill level",
		}, labels),
		stallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_stalls_total",
			Help: "Total number of playback stalls",
		}, labels),
		stallSecondsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "abr_stall_seconds_total",
			Help: "Total time spent stalled",
		}, labels),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abr_http_requests_total",
			Help: "Total number of requests served by the status server",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "abr_http_errors_total",
			Help: "Total number of status server responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		c.segmentsTotal,
		c.bytesTotal,
		c.throughput,
		c.downloadSeconds,
		c.qualitySwitches,
		c.quality,
		c.bitrate,
		c.bufferFill,
		c.stallsTotal,
		c.stallSecondsTotal,
		c.requestsTotal,
		c.errorsTotal,
	)

	return c
}

func (c *Collector) OnSegmentDownloaded(stats common.SegmentStats) {
	mt := string(stats.MediaType)
	c.segmentsTotal.WithLabelValues(mt).Inc()
	c.bytesTotal.WithLabelValues(mt).Add(float64(stats.Bytes))
	if stats.ThroughputBps > 0 {
		c.throughput.WithLabelValues(mt).Observe(stats.ThroughputBps)
	}
	c.downloadSeconds.WithLabelValues(mt).Observe(float64(stats.DownloadTimeMs) / 1000)
	c.quality.WithLabelValues(mt).Set(float64(stats.Quality))
	c.bitrate.WithLabelValues(mt).Set(float64(stats.Bitrate))
}

func (c *Collector) OnQualityChange(change common.QualityChange) {
	mt := string(change.MediaType)
	direction := "up"
	if change.To < change.From {
		direction = "down"
	}
	c.qualitySwitches.WithLabelValues(mt, direction).Inc()
	c.quality.WithLabelValues(mt).Set(float64(change.To))
	c.bitrate.WithLabelValues(mt).Set(float64(change.Bitrate))
}

func (c *Collector) OnBufferLevel(mediaType common.MediaType, fillPercent, _ int) {
	c.bufferFill.WithLabelValues(string(mediaType)).Set(float64(fillPercent))
}

func (c *Collector) OnStall(mediaType common.MediaType, duration time.Duration) {
	mt := string(mediaType)
	c.stallsTotal.WithLabelValues(mt).Inc()
	c.stallSecondsTotal.WithLabelValues(mt).Add(duration.Seconds())
}

// IncRequests increments the total request counter.
func (c *Collector) IncRequests() {
	c.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (c *Collector) IncErrors() {
	c.errorsTotal.Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// responseWriter captures the status code for metrics.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware returns chi-compatible middleware that records request count
// and error count (status >= 400) in the given Collector.
func RequestMiddleware(c *Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrap, r)
			c.IncRequests()
			if wrap.status >= 400 {
				c.IncErrors()
			}
		})
	}
}
