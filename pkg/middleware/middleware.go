package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/serandules/throttle/pkg/throttle"
)

// HeaderWindow names the breached window on a 429 response.
const HeaderWindow = "X-Throttle-Window"

// HeaderRequestID carries the request id assigned by RequestID.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns each request an id (reusing an inbound X-Request-ID when
// present) and echoes it on the response, so rejections can be correlated
// across services.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PerIP enforces the engine's address-scoped quotas for every request.
func PerIP(engine *throttle.Engine, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action, ok := classify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			dec, err := engine.CheckIP(r.Context(), clientIP(r), action)
			respond(w, r, next, dec, err, logger)
		})
	}
}

// PerToken enforces the engine's token-scoped quotas for one resource.
// Requests without a token resolve to the default tier under the shared
// anonymous scope.
func PerToken(engine *throttle.Engine, resolver *throttle.Resolver, resource string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			action, ok := classify(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			tier, id, err := resolver.Resolve(r.Context(), TokenFromContext(r.Context()))
			if err != nil {
				fail(w, r, err, logger)
				return
			}
			dec, err := engine.CheckToken(r.Context(), tier, id, resource, action)
			respond(w, r, next, dec, err, logger)
		})
	}
}

// classify resolves the request's action, honoring a context override.
func classify(r *http.Request) (throttle.Action, bool) {
	return throttle.ClassifyAction(r.Method, ActionFromContext(r.Context()))
}

// clientIP extracts the caller's address, preferring the first entry of
// X-Forwarded-For when a proxy added one.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func respond(w http.ResponseWriter, r *http.Request, next http.Handler, dec throttle.Decision, err error, logger *slog.Logger) {
	if err != nil {
		fail(w, r, err, logger)
		return
	}
	if !dec.Allowed {
		w.Header().Set(HeaderWindow, string(dec.Duration))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "too many requests per " + string(dec.Duration),
		})
		return
	}
	next.ServeHTTP(w, r)
}

func fail(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	logger.Error("throttle middleware failure",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
