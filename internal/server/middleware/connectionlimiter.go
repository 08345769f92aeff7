package middleware

import (
	"log/slog"
	"net/http"

	"github.com/telmele/pictochat-touchgrass/pkg/config"
)

// The protocol has no identity before the websocket is established,
// so connections are limited per source IP rather than per user.
type IPConnectionCounter func(ip string) int
type IPConnectionCycler func(ip string)

func NewConnectionLimiter(
	logger *slog.Logger,
	counter IPConnectionCounter,
	cycler IPConnectionCycler,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.MaxPerIP <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok || reqMeta.IP == "" {
				logger.Error("Connection limiter could not find request metadata in context. Check middleware order.")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			count := counter(reqMeta.IP)
			if count < cfg.MaxPerIP {
				next.ServeHTTP(w, r)
				return
			}

			logger.Warn("IP connection limit reached",
				slog.String("ip", reqMeta.IP),
				slog.Int("count", count),
			)
			switch cfg.Mode {
			case "reject":
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case "cycle":
				cycler(reqMeta.IP)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Invalid connection limit mode configured", slog.String("mode", cfg.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
