package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/olyamironova/auction-engine/internal/logger"
)

const ClientIDHeader = "X-Client-ID"

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client. Clients are identified by X-Client-ID, or by
// remote IP when the header is absent.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
}

func (r *RateLimiter) Allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cl, ok := r.clients[id]
	if !ok {
		r.evict(now)
		cl = &client{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[id] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// evict drops buckets idle for longer than r.idle. Called with mu held.
func (r *RateLimiter) evict(now time.Time) {
	for id, cl := range r.clients {
		if now.Sub(cl.lastSeen) > r.idle {
			delete(r.clients, id)
		}
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetHeader(ClientIDHeader)
		if clientID == "" {
			clientID = c.ClientIP()
		}
		if !r.Allow(clientID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

const RequestIDHeader = "X-Request-ID"

// Logger tags each request with an id, stores a logger carrying it in the request
// context (see logger.FromContext) and writes one structured line per request.
func Logger(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		rl := l.With("request_id", id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), rl))

		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		rl.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery turns a handler panic into a 500. Invariant violations raised by the engine
// are re-panicked so the process stops.
func Recovery(l *slog.Logger, fatal func(any) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if fatal != nil && fatal(rec) {
					panic(rec)
				}
				l.Error("handler panic", "path", c.FullPath(), "panic", rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
