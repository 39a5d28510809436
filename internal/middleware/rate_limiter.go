package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/thatmanfrancis/sjfulfillmentv2-sub004/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// window counts requests for one client within a fixed window.
type window struct {
	count int
	end   time.Time
}

// limiter is a fixed-window counter keyed by client IP. Expired windows are
// purged opportunistically so idle clients do not accumulate.
type limiter struct {
	mu        sync.Mutex
	limit     int
	size      time.Duration
	clients   map[string]*window
	nextPurge time.Time
	now       func() time.Time
}

func newLimiter(limit int, size time.Duration) *limiter {
	return &limiter{
		limit:   limit,
		size:    size,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

// allow records one request and reports whether it fits, plus the window end.
func (l *limiter) allow(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextPurge) {
		l.purge(now)
		l.nextPurge = now.Add(5 * l.size)
	}

	w, ok := l.clients[key]
	if !ok || now.After(w.end) {
		w = &window{end: now.Add(l.size)}
		l.clients[key] = w
	}
	w.count++
	return w.count <= l.limit, w.end
}

func (l *limiter) purge(now time.Time) {
	purged := 0
	for key, w := range l.clients {
		if now.After(w.end) {
			delete(l.clients, key)
			purged++
		}
	}
	if purged > 0 {
		log.Debug().Int("purged", purged).Int("remaining", len(l.clients)).Msg("rate limiter purged")
	}
}

// RateLimiter allows limit requests per client IP per window. A limit below 1
// disables it.
func RateLimiter(limit int, size time.Duration) gin.HandlerFunc {
	if limit < 1 {
		return func(c *gin.Context) { c.Next() }
	}
	l := newLimiter(limit, size)
	return func(c *gin.Context) {
		ok, end := l.allow(c.ClientIP())
		if !ok {
			retry := int(time.Until(end).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.WithCode(apierror.CodeRateLimited, "too many requests"))
			return
		}
		c.Next()
	}
}
