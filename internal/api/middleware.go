package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guesthouse/internal/config"
	"guesthouse/internal/domain"
	"guesthouse/internal/metrics"
	"guesthouse/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	clientCtxKey ctxKey = iota
	principalCtxKey
	routeCtxKey
)

// routeInfo lets the logging middleware see the pattern the mux matched on a
// request copy further down the chain.
type routeInfo struct {
	pattern string
}

func markRoute(r *http.Request) {
	if info, ok := r.Context().Value(routeCtxKey).(*routeInfo); ok {
		info.pattern = r.Pattern
	}
}

// HTTPAuth authenticates the calling gateway by API key, applies the per-key
// rate limit and reads the end-user principal the gateway forwards.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    *keyring
	limiter *RateLimiter
}

func NewHTTPAuth(cfg config.APIConfig, limiter *RateLimiter) *HTTPAuth {
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimit)
	}
	return &HTTPAuth{cfg: cfg, keys: newKeyring(cfg.Auth), limiter: limiter}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if a.cfg.Auth.Enabled {
			client, err := a.keys.authenticate(
				strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())),
				strings.TrimSpace(r.Header.Get(a.keys.extraHeader())),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			ctx = context.WithValue(ctx, clientCtxKey, client)
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		principal, err := a.principal(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ctx = context.WithValue(ctx, principalCtxKey, principal)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects clients whose key lacks the permission.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client, ok := r.Context().Value(clientCtxKey).(config.APIClientKey); ok && !permitted(client, permission) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}
		next(w, r)
	}
}

// principal reads the caller identity. Both headers absent means anonymous.
func (a *HTTPAuth) principal(r *http.Request) (domain.Principal, error) {
	rawID := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderUserID, userIDHeaderDefault)))
	rawRole := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderRole, roleHeaderDefault)))
	if rawID == "" && rawRole == "" {
		return domain.Principal{}, nil
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return domain.Principal{}, errBadPrincipal("user id")
	}
	role, err := models.ParseRole(strings.ToLower(rawRole))
	if err != nil {
		return domain.Principal{}, errBadPrincipal("role")
	}
	return domain.Principal{UserID: id, Role: role}, nil
}

type errBadPrincipal string

func (e errBadPrincipal) Error() string { return "invalid principal " + string(e) }

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keys.apiKeyHeader())); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

func principalFrom(r *http.Request) domain.Principal {
	p, _ := r.Context().Value(principalCtxKey).(domain.Principal)
	return p
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	base := *logger
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		info := &routeInfo{}
		r = r.WithContext(context.WithValue(r.Context(), routeCtxKey, info))

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := info.pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		base.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
