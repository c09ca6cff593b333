package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/callcontrol"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/signaling"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/transcript"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

// maxTrackedCallers bounds the per-identity API limiter.
const maxTrackedCallers = 10_000

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-webrtc-signaling-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"signaling_send_timeout", cfg.SignalingSendTimeout,
		"ice_servers", len(cfg.ICEServers),
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	if err := cfg.ICEConfigError(); err != nil {
		logger.Error("invalid ICE server configuration; /webrtc/ice will fail until fixed", "err", err)
	}

	logStartupSecurityWarnings(logger, cfg)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	a, err := newApp(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure relay", "err", err)
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.http.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		a.signaling.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// signaling server closes them itself.
	a.signaling.Close()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

type app struct {
	http      *httpserver.Server
	signaling *signaling.Server
	router    *relay.Router
	metrics   *metrics.Metrics
}

// newApp wires every component onto one HTTP server without listening.
func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*app, error) {
	m := metrics.New()

	router := relay.NewRouter(relay.RouterConfig{
		Logger:      logger,
		Metrics:     m,
		SendTimeout: cfg.SignalingSendTimeout,
	})
	if err := m.RegisterGauge("registered_identities", "Identities with a live signaling connection.", func() float64 {
		return float64(router.Registry().Len())
	}); err != nil {
		return nil, err
	}

	resolver, err := auth.NewResolver(cfg)
	if err != nil {
		return nil, err
	}
	filter, err := transcript.NewFilter(cfg.TranscriptBlocklist)
	if err != nil {
		return nil, fmt.Errorf("build transcript filter: %w", err)
	}

	srv := httpserver.New(cfg, logger, build, httpserver.Options{Metrics: m, Identity: resolver})

	sigAuth, err := signaling.NewAuthorizer(cfg)
	if err != nil {
		return nil, err
	}

	sig := signaling.NewServer(signaling.Config{
		Router:               router,
		Logger:               logger,
		Metrics:              m,
		AllowedOrigins:       cfg.AllowedOrigins,
		Authorizer:           sigAuth,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
	})
	sig.RegisterRoutes(srv.Mux())
	if err := m.RegisterGauge("signaling_connections", "Open signaling WebSocket connections.", func() float64 {
		return float64(sig.ActiveConnections())
	}); err != nil {
		return nil, err
	}

	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Rate:    int64(cfg.MaxCallRequestsPerSecond),
		Burst:   int64(cfg.MaxCallRequestsPerSecond),
		MaxKeys: maxTrackedCallers,
	})
	guard := httpserver.Guard{Resolver: resolver, Limiter: limiter, Metrics: m, Logger: logger}

	callcontrol.NewHandler(callcontrol.NewGateway(callcontrol.GatewayConfig{
		Deliverer: router,
		Logger:    logger,
		Metrics:   m,
	}), guard).Register(srv)
	transcript.NewHandler(transcript.NewPusher(router, filter, logger, m), guard, logger, m).Register(srv)

	// Expose internal counters in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m))

	return &app{http: srv, signaling: sig, router: router, metrics: m}, nil
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
