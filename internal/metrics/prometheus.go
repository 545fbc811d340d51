// Package metrics exposes receiver statistics to Prometheus. Counters are
// read from the shared ReceiverState at scrape time; latency and size
// distributions are recorded directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MustBeArt/postlocutor/internal/protocol"
	"github.com/MustBeArt/postlocutor/internal/state"
)

const namespace = "postlocutor"

// Metrics contains the Prometheus instruments recorded outside ReceiverState.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Frame metrics
	PayloadSize   *prometheus.HistogramVec
	ReceiveErrors prometheus.Counter

	// Audio metrics
	DecodeDuration *prometheus.HistogramVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PayloadSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_payload_bytes",
			Help:      "Payload size of valid frames by frame type",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 10), // 8B to 4KB
		}, []string{"type"}),
		ReceiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total number of transient UDP receive errors",
		}),
		DecodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "opus_decode_duration_seconds",
			Help:      "Time spent decoding one Opus frame",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 10), // 50us to ~25ms
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// ObservePayload records the payload size of a valid frame
func (m *Metrics) ObservePayload(t protocol.FrameType, size int) {
	if m == nil {
		return
	}
	label := t.String()
	if !t.Known() {
		label = "Unknown"
	}
	m.PayloadSize.WithLabelValues(label).Observe(float64(size))
}

// RecordReceiveError increments the transient receive error counter
func (m *Metrics) RecordReceiveError() {
	if m == nil {
		return
	}
	m.ReceiveErrors.Inc()
}

// ObserveDecode records the duration of one decode call
func (m *Metrics) ObserveDecode(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.DecodeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// RegisterState exports the counters of st, plus the current playback buffer
// depth when bufferDepth is non-nil
func RegisterState(reg prometheus.Registerer, st *state.ReceiverState, bufferDepth func() int) error {
	if err := reg.Register(newStateCollector(st)); err != nil {
		return err
	}

	if bufferDepth == nil {
		return nil
	}
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "playback_buffer_chunks",
		Help:      "Current number of decoded chunks waiting for playback",
	}, func() float64 {
		return float64(bufferDepth())
	}))
}
