package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrometheusHandler_ExposesEvents(t *testing.T) {
	m := New()
	m.Inc("foo")
	m.Add("bar", 2)
	m.Inc(`quote"back\slash`)
	m.ObserveHTTPRequest(http.MethodGet, http.StatusOK, 10*time.Millisecond)
	require.NoError(t, m.RegisterGauge("registered_identities", "Identities currently registered.", func() float64 { return 3 }))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE aero_webrtc_signaling_relay_events_total counter",
		`aero_webrtc_signaling_relay_events_total{event="bar"} 2`,
		`aero_webrtc_signaling_relay_events_total{event="foo"} 1`,
		`aero_webrtc_signaling_relay_events_total{event="quote\"back\\slash"} 1`,
		`aero_webrtc_signaling_relay_http_requests_total{method="GET",status="200"} 1`,
		"aero_webrtc_signaling_relay_registered_identities 3",
	} {
		require.True(t, strings.Contains(body, want), "missing %q in:\n%s", want, body)
	}
}

func TestGetAndSnapshot(t *testing.T) {
	m := New()
	require.Equal(t, uint64(0), m.Get(DeliverDelivered))

	m.Inc(DeliverDelivered)
	m.Inc(DeliverDelivered)
	m.Inc(DeliverTargetOffline)

	require.Equal(t, uint64(2), m.Get(DeliverDelivered))
	require.Equal(t, map[string]uint64{
		DeliverDelivered:     2,
		DeliverTargetOffline: 1,
	}, m.Snapshot())
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Inc("x")
	m.ObserveHTTPRequest(http.MethodPost, http.StatusNotFound, time.Second)
	require.Equal(t, uint64(0), m.Get("x"))
	require.Empty(t, m.Snapshot())
	require.NoError(t, m.RegisterGauge("g", "g", func() float64 { return 1 }))

	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}
