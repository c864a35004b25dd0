package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/auction-engine/internal/api/dto"
	"github.com/olyamironova/auction-engine/internal/api/stream"
	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/logger"
	"github.com/olyamironova/auction-engine/internal/middleware"
	"github.com/olyamironova/auction-engine/internal/port"
)

// Engine is the part of core.Engine the HTTP API needs.
type Engine interface {
	Symbol() string
	Process(ctx context.Context, o domain.Order) ([]domain.Trade, error)
	Snapshot(depth int) *domain.BookSnapshot
	Stats() core.Stats
}

type HealthCheck func(ctx context.Context) error

type Option func(*HTTPServer)

func WithLogger(l *slog.Logger) Option { return func(s *HTTPServer) { s.log = l } }

// WithStream serves the hub's events on GET /events.
func WithStream(h *stream.Hub) Option { return func(s *HTTPServer) { s.hub = h } }

// WithJournal serves GET /trades from j.
func WithJournal(j port.Journal) Option { return func(s *HTTPServer) { s.journal = j } }

// WithCache serves GET /orderbook/cached from c.
func WithCache(c port.BookCache) Option { return func(s *HTTPServer) { s.cache = c } }

func WithMetricsHandler(h http.Handler) Option { return func(s *HTTPServer) { s.metrics = h } }

// WithRateLimiter throttles POST /orders.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(s *HTTPServer) { s.limiter = rl }
}

func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *HTTPServer) { s.health[name] = check }
}

type HTTPServer struct {
	eng     Engine
	log     *slog.Logger
	hub     *stream.Hub
	journal port.Journal
	cache   port.BookCache
	metrics http.Handler
	limiter *middleware.RateLimiter
	health  map[string]HealthCheck
	router  *gin.Engine
}

func NewHTTPServer(eng Engine, opts ...Option) *HTTPServer {
	s := &HTTPServer{eng: eng, log: slog.Default(), health: make(map[string]HealthCheck)}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "http")
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler { return s.router }

func (s *HTTPServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(s.log, isFatal), middleware.Logger(s.log))

	submit := []gin.HandlerFunc{s.submitOrder}
	if s.limiter != nil {
		submit = append([]gin.HandlerFunc{s.limiter.Middleware()}, submit...)
	}
	r.POST("/orders", submit...)
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/stats", s.getStats)
	r.GET("/healthz", s.healthz)
	if s.cache != nil {
		r.GET("/orderbook/cached", s.getCachedOrderbook)
	}
	if s.journal != nil {
		r.GET("/trades", s.getTrades)
	}
	if s.hub != nil {
		r.GET("/events", s.events)
	}
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

// isFatal keeps invariant violations fatal instead of turning them into a 500.
func isFatal(rec any) bool {
	err, ok := rec.(error)
	return ok && errors.Is(err, domain.ErrInvariantViolation)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	trades, err := s.eng.Process(ctx, req.Order())
	if err != nil {
		logger.FromContext(ctx).InfoContext(ctx, "order not accepted", "order_id", req.ID, "error", err)
		c.JSON(statusFor(err), dto.ErrorResponse{Error: err.Error()})
		return
	}

	var filled uint32
	for _, t := range trades {
		filled += t.Quantity
	}
	c.JSON(http.StatusOK, dto.SubmitOrderResponse{
		ID:     req.ID,
		Trades: dto.FromTrades(trades),
		Filled: filled,
	})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	depth, err := intQuery(c, "depth", 0)
	if err != nil || depth < 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "depth must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, dto.FromSnapshot(s.eng.Snapshot(depth)))
}

func (s *HTTPServer) getCachedOrderbook(c *gin.Context) {
	snap, err := s.cache.GetBook(c.Request.Context(), s.eng.Symbol())
	if err != nil {
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "no cached book"})
		return
	}
	c.JSON(http.StatusOK, dto.FromSnapshot(snap))
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "limit must be a positive integer"})
		return
	}
	trades, err := s.journal.RecentTrades(c.Request.Context(), s.eng.Symbol(), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: err.Error()})
		return
	}
	res := dto.GetTradesResponse{Trades: make([]dto.Trade, len(trades))}
	for i, t := range trades {
		res.Trades[i] = dto.FromTrade(t)
	}
	c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Stats())
}

func (s *HTTPServer) healthz(c *gin.Context) {
	checks := gin.H{}
	status := http.StatusOK
	for name, check := range s.health {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{"symbol": s.eng.Symbol(), "checks": checks})
}

// events streams every published event as SSE, named after its type.
func (s *HTTPServer) events(c *gin.Context) {
	sub := s.hub.Subscribe()
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case m, ok := <-sub.C():
			if !ok {
				return false
			}
			c.SSEvent(string(m.Type), string(m.Data))
			return true
		}
	})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
