package transcript

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

var ErrFiltered = errors.New("transcript filtered")

type Pusher struct {
	deliverer relay.Deliverer
	filter    *Filter
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewPusher(deliverer relay.Deliverer, filter *Filter, logger *slog.Logger, m *metrics.Metrics) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{deliverer: deliverer, filter: filter, log: logger, metrics: m}
}

// Push delivers text as a TRANSCRIPT envelope to identity, or returns
// ErrFiltered without touching the connection.
func (p *Pusher) Push(ctx context.Context, identity, text string) (relay.Outcome, error) {
	if p.filter.Ignore(text) {
		p.metrics.Inc(metrics.TranscriptFiltered)
		p.log.Debug("transcript filtered", "identity", identity)
		return 0, ErrFiltered
	}
	outcome := p.deliverer.DeliverEnvelope(ctx, identity, relay.NewTranscriptEnvelope(text))
	p.metrics.Inc(metrics.TranscriptPushed)
	p.log.Debug("transcript pushed", "identity", identity, "outcome", outcome)
	return outcome, nil
}
