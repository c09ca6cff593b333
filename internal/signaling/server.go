package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
)

// Path is where browsers open the signaling WebSocket.
const Path = "/websocket-signaling"

const (
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultMaxMessageBytes      = 64 * 1024
	defaultMaxMessagesPerSecond = 50
)

type Config struct {
	Router  *relay.Router
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// AllowedOrigins follows origin.IsAllowed: empty means same host only.
	AllowedOrigins []string
	// Authorizer runs before the upgrade. Nil allows every socket.
	Authorizer Authorizer

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int

	Clock ratelimit.Clock
}

type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[*wsConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	if cfg.Router == nil {
		cfg.Router = relay.NewRouter(relay.RouterConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = min(defaultPingInterval, cfg.IdleTimeout/2)
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = AllowAllAuthorizer{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		log:    cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			_, ok := origin.CheckRequest(r, s.cfg.AllowedOrigins)
			return ok
		},
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET "+Path, s)
}

func (s *Server) Router() *relay.Router { return s.cfg.Router }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.cfg.Authorizer.Authorize(r)
	if err != nil {
		if auth.IsAuthError(err) {
			s.cfg.Metrics.Inc(metrics.AuthFailure)
			s.log.Debug("signaling upgrade unauthorized", "err", err, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.log.Error("signaling authorization failed", "err", err)
		http.Error(w, "authorization failed", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.log.Debug("websocket upgrade failed", "err", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := newWSConn(conn)
	c.identity = identity
	if !s.track(c) {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		c.Close()
		return
	}
	defer s.untrack(c)

	s.serve(c)
}

// serve runs the read loop for c until the peer goes away, the connection
// idles out, or the server shuts down.
func (s *Server) serve(c *wsConn) {
	router := s.cfg.Router
	router.OnOpen(c)
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic in signaling read loop", "conn_id", c.ID(), "recover", rec, "stack", string(debug.Stack()))
		}
		c.Close()
		router.OnClose(c)
	}()

	conn := c.conn
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	extendDeadline := func() { _ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) }
	extendDeadline()
	conn.SetPongHandler(func(string) error {
		extendDeadline()
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.keepalive(c, stopPing)

	limiter := ratelimit.NewTokenBucket(s.cfg.Clock, int64(s.cfg.MaxMessagesPerSecond), int64(s.cfg.MaxMessagesPerSecond))

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				s.cfg.Metrics.Inc(metrics.DropReasonTooLarge)
				c.closeWith(websocket.CloseMessageTooBig, "message too large")
			case isTimeout(err):
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				s.log.Debug("signaling websocket read error", "conn_id", c.ID(), "err", err)
			}
			return
		}
		extendDeadline()

		// Rate limit after reading so bytes already buffered are consumed and
		// the peer reliably sees the close frame.
		if !limiter.Allow(1) {
			s.cfg.Metrics.Inc(metrics.DropReasonRateLimited)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			s.cfg.Metrics.Inc(metrics.DropReasonBinaryFrame)
			s.log.Debug("dropping non-text frame", "conn_id", c.ID(), "frame_type", msgType)
			continue
		}

		if !s.registerAllowed(c, data) {
			s.cfg.Metrics.Inc(metrics.RegisterRejected)
			c.closeWith(websocket.ClosePolicyViolation, "identity mismatch")
			return
		}
		if err := router.Route(s.ctx, c, data); err != nil {
			s.log.Debug("dropping message", "conn_id", c.ID(), "err", err)
		}
	}
}

// registerAllowed rejects a REGISTER that claims an identity other than the
// one the socket authenticated as. Everything else is left to the router.
func (s *Server) registerAllowed(c *wsConn, data []byte) bool {
	if c.identity == "" {
		return true
	}
	env, err := relay.ParseEnvelope(data)
	if err != nil || env.Kind() != relay.KindRegister {
		return true
	}
	claimed := env.RegisterIdentity()
	if claimed == "" || claimed == c.identity {
		return true
	}
	s.log.Warn("rejected register for another identity",
		"conn_id", c.ID(),
		"identity", c.identity,
		"claimed", claimed,
	)
	return false
}

func (s *Server) keepalive(c *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Close sends a going-away frame to every open connection, closes them and
// waits for their read loops to finish unregistering.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	s.cancel()
	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		c.Close()
	}
	s.wg.Wait()
}

// ActiveConnections returns the number of open WebSocket connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
