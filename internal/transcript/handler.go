package transcript

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

type pushRequest struct {
	Text string `json:"text" validate:"max=8192"`
}

type chunkRequest struct {
	CallID string `path:"callId" validate:"required,max=128"`
	Text   string `json:"text" validate:"required,max=8192"`
}

type PushResponse struct {
	Delivered bool           `json:"delivered"`
	Outcome   *relay.Outcome `json:"outcome,omitempty"`
	Filtered  bool           `json:"filtered,omitempty"`
}

type Handler struct {
	pusher  *Pusher
	guard   httpserver.Guard
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(pusher *Pusher, guard httpserver.Guard, logger *slog.Logger, m *metrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{pusher: pusher, guard: guard, log: logger, metrics: m}
}

func (h *Handler) Register(reg httpserver.Registrar) {
	reg.Handle("POST /api/transcripts", h.guard.Wrap(h.push))
	reg.Handle("POST /api/calls/{callId}/transcript", h.guard.Wrap(h.chunk))
}

func (h *Handler) push(w http.ResponseWriter, r *http.Request, identity string) {
	var req pushRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}
	if err := httpserver.Validate(req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}

	outcome, err := h.pusher.Push(r.Context(), identity, req.Text)
	if errors.Is(err, ErrFiltered) {
		httpserver.WriteJSON(w, http.StatusOK, PushResponse{Filtered: true})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, PushResponse{Delivered: outcome == relay.Delivered, Outcome: &outcome})
}

// chunk accepts a transcript fragment for a call. Nothing is stored; the
// fragment is logged and counted.
func (h *Handler) chunk(w http.ResponseWriter, r *http.Request, identity string) {
	var req chunkRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}
	req.CallID = r.PathValue("callId")
	if err := httpserver.Validate(req); err != nil {
		httpserver.WriteBadRequest(w, err)
		return
	}

	h.metrics.Inc(metrics.TranscriptChunk)
	h.log.Info("transcript chunk", "call_id", req.CallID, "identity", identity, "chars", len([]rune(req.Text)))
	w.WriteHeader(http.StatusNoContent)
}
