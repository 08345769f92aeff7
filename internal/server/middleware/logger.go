package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status code written downstream. Unwrap
// keeps the hijack path through the wrapper working, which the
// websocket upgrade relies on.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// NewRequestLogger creates a middleware that logs each incoming
// request and its upgrade outcome. For upgraded connections the
// handler blocks until the socket closes, so the outcome line also
// carries the session duration.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			var ip string
			if ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusSwitchingProtocols {
				logger.Info("Websocket session ended",
					slog.String("ip", ip),
					slog.Duration("duration", time.Since(start)),
				)
				return
			}
			logger.Warn("Upgrade refused",
				slog.String("ip", ip),
				slog.Int("status", rec.status),
			)
		})
	}
}
