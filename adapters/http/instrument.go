package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/costboard/adapters/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// instrument logs each request at debug level and, when m is non-nil,
// records its duration and status class. Probe, metrics and docs paths
// are passed through untouched.
func instrument(logger zerolog.Logger, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if quietPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if m != nil {
				m.RequestsInFlight.Inc()
				defer m.RequestsInFlight.Dec()
			}

			began := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			took := time.Since(began)

			route := matchedRoute(r)
			if m != nil {
				m.RequestDuration.WithLabelValues(r.Method, route).Observe(took.Seconds())
				m.RequestsTotal.WithLabelValues(r.Method, route, statusClass(ww.Status())).Inc()
			}

			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", route).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", took).
				Msg("request served")
		})
	}
}

// matchedRoute is the chi pattern for r, so label values stay bounded.
func matchedRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusClass maps 404 to "4xx" and so on.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}

func quietPath(path string) bool {
	if path == "/metrics" {
		return true
	}
	for _, prefix := range []string{"/health", "/swagger", "/.well-known"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
