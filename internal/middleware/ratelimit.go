package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/internal/domain/dto"
)

// Default limits for the read API.
const (
	DefaultRateLimit  = 60
	DefaultRateWindow = time.Minute
)

type client struct {
	windowStart time.Time
	count       int
}

// rateLimiter is a fixed-window counter per client IP, kept in memory.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &rateLimiter{clients: make(map[string]*client), limit: limit, window: window, now: time.Now}
}

// allow records one request for ip and reports whether it fits the window,
// plus the time left until the window resets.
func (l *rateLimiter) allow(ip string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[ip]
	if !ok || now.Sub(cl.windowStart) >= l.window {
		l.evictExpired(now)
		cl = &client{windowStart: now}
		l.clients[ip] = cl
	}
	cl.count++
	return cl.count <= l.limit, cl.windowStart.Add(l.window).Sub(now)
}

// evictExpired drops clients whose window is over; caller holds mu.
func (l *rateLimiter) evictExpired(now time.Time) {
	for ip, cl := range l.clients {
		if now.Sub(cl.windowStart) >= l.window {
			delete(l.clients, ip)
		}
	}
}

// RateLimiter limits each client IP to limit requests per window.
// Non-positive arguments fall back to 60 requests per minute.
//
// Response when limit exceeded:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 42
//	{"message": "rate limit exceeded", "timestamp": "..."}
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	l := newRateLimiter(limit, window)
	return func(c *gin.Context) {
		ok, reset := l.allow(c.ClientIP())
		if !ok {
			secs := int(reset.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponse("rate limit exceeded", nil))
			return
		}
		c.Next()
	}
}
