package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "aero_webrtc_signaling_relay"

// Event names. They are exported as the `event` label of
// aero_webrtc_signaling_relay_events_total.
const (
	ConnOpened   = "conn_opened"
	ConnClosed   = "conn_closed"
	Registered   = "registered"
	Superseded   = "identity_superseded"
	Unregistered = "unregistered"

	DeliverDelivered     = "deliver_delivered"
	DeliverTargetOffline = "deliver_target_offline"
	DeliverSendFailed    = "deliver_send_failed"

	MalformedEnvelope = "malformed_envelope"
	UnknownKind       = "unknown_kind"
	CallForwarded     = "call_forwarded"

	CallRing   = "call_ring"
	CallAnswer = "call_answer"
	CallHangup = "call_hangup"

	TranscriptPushed   = "transcript_pushed"
	TranscriptFiltered = "transcript_filtered"
	TranscriptChunk    = "transcript_chunk"

	AuthFailure      = "auth_failure"
	RegisterRejected = "register_rejected"

	DropReasonRateLimited = "rate_limited"
	DropReasonTooLarge    = "message_too_large"
	DropReasonBinaryFrame = "binary_frame"
)

// Metrics owns a private Prometheus registry. A nil *Metrics is valid and
// records nothing, which keeps call sites free of nil checks.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Internal event counters.",
		}, []string{"event"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	m.registry.MustRegister(m.events, m.requests, m.latency)
	return m
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name).Add(float64(n))
}

// Get returns the current value of an event counter.
func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	var out dto.Metric
	if err := m.events.WithLabelValues(name).Write(&out); err != nil {
		return 0
	}
	return uint64(out.GetCounter().GetValue())
}

// Snapshot returns every event counter that has been touched.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := map[string]uint64{}
	if m == nil {
		return out
	}
	families, err := m.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		if fam.GetName() != namespace+"_events_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "event" {
					out[label.GetValue()] = uint64(metric.GetCounter().GetValue())
				}
			}
		}
	}
	return out
}

func (m *Metrics) ObserveHTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

// RegisterGauge exposes fn as a gauge sampled at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// HTTPRequests returns how many requests finished with method and status.
func (m *Metrics) HTTPRequests(method string, status int) uint64 {
	if m == nil {
		return 0
	}
	var out dto.Metric
	if err := m.requests.WithLabelValues(method, strconv.Itoa(status)).Write(&out); err != nil {
		return 0
	}
	return uint64(out.GetCounter().GetValue())
}
