package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// rateLimiter counts application frames per connection in fixed
// windows. Windows reset themselves via a timer, so an idle
// connection costs nothing after its window expires.
type rateLimiter struct {
	logger *slog.Logger
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[uuid.UUID]*windowCount
}

type windowCount struct {
	n     int
	timer *time.Timer
}

func newRateLimiter(logger *slog.Logger, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		logger:  logger.With(slog.String("component", "rate_limiter")),
		limit:   limit,
		window:  window,
		windows: make(map[uuid.UUID]*windowCount),
	}
}

func (l *rateLimiter) allow(connID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	wc, ok := l.windows[connID]
	if !ok {
		wc = &windowCount{}
		wc.timer = time.AfterFunc(l.window, func() {
			l.mu.Lock()
			delete(l.windows, connID)
			l.mu.Unlock()
		})
		l.windows[connID] = wc
	}
	wc.n++
	if wc.n > l.limit {
		l.logger.Debug("rate limit exceeded",
			slog.String("connID", connID.String()),
			slog.Int("count", wc.n),
		)
		return false
	}
	return true
}

func (l *rateLimiter) forget(connID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if wc, ok := l.windows[connID]; ok {
		wc.timer.Stop()
		delete(l.windows, connID)
	}
}
