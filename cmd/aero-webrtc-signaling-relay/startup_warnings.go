package main

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none trusts the identity header; any client can act as any user",
			"warning_code", "auth_mode_none",
			"auth_mode", cfg.AuthMode,
			"identity_header", cfg.IdentityHeader,
			"mode", cfg.Mode,
		)
	}

	if lo.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxCallRequestsPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_CALL_REQUESTS_PER_SECOND is 0 (unlimited) while --mode=prod",
			"warning_code", "call_requests_unlimited_in_prod",
			"max_call_requests_per_second", cfg.MaxCallRequestsPerSecond,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.AuthMode == config.AuthModeJWT && len(cfg.JWTSecret) < 32 {
		logger.Warn("startup security warning: JWT_SECRET is shorter than 32 bytes",
			"warning_code", "jwt_secret_short",
			"mode", cfg.Mode,
		)
	}
}
