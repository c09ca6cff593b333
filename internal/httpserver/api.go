package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling-relay/internal/ratelimit"
)

const maxJSONBodyBytes = 64 * 1024

// Registrar is the subset of Server used by API packages to mount routes.
type Registrar interface {
	Handle(pattern string, h http.Handler)
}

// IdentityHandlerFunc is an API handler that runs with a resolved identity.
type IdentityHandlerFunc func(w http.ResponseWriter, r *http.Request, identity string)

// Guard resolves the caller identity and applies the per-identity request
// rate limit before an API handler runs.
type Guard struct {
	Resolver auth.Resolver
	Limiter  *ratelimit.KeyedLimiter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func (g Guard) Wrap(next IdentityHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := g.Resolver.Resolve(r)
		if err != nil {
			if auth.IsAuthError(err) {
				g.Metrics.Inc(metrics.AuthFailure)
				WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			g.logger().Error("identity resolution failed", "err", err)
			WriteError(w, http.StatusInternalServerError, "internal", "identity resolution failed")
			return
		}
		if !g.Limiter.Allow(identity) {
			g.Metrics.Inc(metrics.DropReasonRateLimited)
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next(w, r, identity)
	})
}

func (g Guard) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"query", "json", "path"} {
			if name, _, _ := strings.Cut(f.Tag.Get(key), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Validate checks req's `validate` tags and returns a client-facing error.
func Validate(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return errors.New(strings.Join(lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}), "; "))
}

// DecodeJSON reads a bounded JSON body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func WriteBadRequest(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
}
