package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olyamironova/auction-engine/internal/adapter/in_memory"
	"github.com/olyamironova/auction-engine/internal/api/dto"
	"github.com/olyamironova/auction-engine/internal/api/stream"
	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/middleware"
	"github.com/olyamironova/auction-engine/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, opts ...Option) (*HTTPServer, *core.Engine) {
	t.Helper()
	eng := core.NewEngine("DEMO", nil, core.WithLogger(quiet()))
	return NewHTTPServer(eng, append([]Option{WithLogger(quiet())}, opts...)...), eng
}

func do(s *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSubmitOrderAndMatch(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodPost, "/orders", `{"id":1,"side":"BUY","price":"100.00","quantity":50}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(s, http.MethodPost, "/orders", `{"id":2,"side":"SELL","price":99.5,"quantity":30}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res dto.SubmitOrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, uint64(2), res.ID)
	assert.Equal(t, uint32(30), res.Filled)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "100.00", res.Trades[0].Price)
	assert.Equal(t, domain.Buy, res.Trades[0].Maker)
	assert.Equal(t, uint64(1), res.Trades[0].BuyOrderID)
	assert.Equal(t, 1, res.Trades[0].Ordinal)

	w = do(s, http.MethodGet, "/orderbook", "")
	require.Equal(t, http.StatusOK, w.Code)
	var book dto.GetOrderbookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, []dto.Level{{Price: "100.00", Orders: 1, Quantity: 20}}, book.Bids)
	assert.Empty(t, book.Asks)
	assert.Equal(t, uint64(2), book.Sequence)
}

func TestSubmitOrderErrors(t *testing.T) {
	s, eng := newTestServer(t)
	require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/orders", `{"id":1,"side":"BUY","price":"100","quantity":5}`).Code)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"id":`, http.StatusBadRequest},
		{"missing id", `{"side":"BUY","price":"100","quantity":5}`, http.StatusBadRequest},
		{"bad side", `{"id":2,"side":"HOLD","price":"100","quantity":5}`, http.StatusBadRequest},
		{"zero price", `{"id":3,"side":"SELL","price":"0","quantity":5}`, http.StatusBadRequest},
		{"zero quantity", `{"id":4,"side":"SELL","price":"100","quantity":0}`, http.StatusBadRequest},
		{"duplicate id", `{"id":1,"side":"SELL","price":"101","quantity":5}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/orders", tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	st := eng.Stats()
	assert.Equal(t, uint64(1), st.OrdersAccepted)
	// malformed bodies never reach the engine
	assert.Equal(t, uint64(4), st.OrdersRejected)
}

func TestOrderbookDepth(t *testing.T) {
	s, _ := newTestServer(t)
	for i, px := range []string{"99", "98", "97"} {
		body := `{"id":` + strconv.Itoa(i+1) + `,"side":"BUY","price":"` + px + `","quantity":1}`
		require.Equal(t, http.StatusOK, do(s, http.MethodPost, "/orders", body).Code)
	}

	var book dto.GetOrderbookResponse
	w := do(s, http.MethodGet, "/orderbook?depth=2", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	require.Len(t, book.Bids, 2)
	assert.Equal(t, "99.00", book.Bids[0].Price)
	assert.Equal(t, "98.00", book.Bids[1].Price)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/orderbook?depth=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/orderbook?depth=x", "").Code)
}

func TestStatsAndHealth(t *testing.T) {
	down := errors.New("connection refused")
	s, _ := newTestServer(t,
		WithHealthCheck("redis", func(context.Context) error { return nil }),
	)
	do(s, http.MethodPost, "/orders", `{"id":1,"side":"BUY","price":"100","quantity":5}`)

	w := do(s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st core.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, uint64(1), st.OrdersAccepted)
	assert.Equal(t, 1, st.BidLevels)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/healthz", "").Code)

	s, _ = newTestServer(t, WithHealthCheck("postgres", func(context.Context) error { return down }))
	w = do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestOptionalRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/trades", "/events", "/metrics", "/orderbook/cached"} {
		assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, path, "").Code, path)
	}
}

func TestTradesAndCachedBookFromSinks(t *testing.T) {
	repo, cache := in_memory.NewMemoryRepo(), in_memory.NewCache()
	sink := port.Fanout{port.JournalSink(repo), port.CacheSink(cache)}
	d := core.NewDispatcher(sink, 64, core.WithDispatchLogger(quiet()))
	d.Start(context.Background())

	eng := core.NewEngine("DEMO", d, core.WithLogger(quiet()))
	s := NewHTTPServer(eng, WithLogger(quiet()), WithJournal(repo), WithCache(cache))

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/orderbook/cached", "").Code)

	do(s, http.MethodPost, "/orders", `{"id":1,"side":"SELL","price":"101","quantity":10}`)
	do(s, http.MethodPost, "/orders", `{"id":2,"side":"BUY","price":"102","quantity":4}`)
	do(s, http.MethodPost, "/orders", `{"id":3,"side":"BUY","price":"102","quantity":4}`)
	d.Close()

	w := do(s, http.MethodGet, "/trades?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res dto.GetTradesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, uint64(3), res.Trades[0].BuyOrderID)
	assert.Equal(t, "101.00", res.Trades[0].Price)
	assert.Equal(t, domain.Sell, res.Trades[0].Maker)

	w = do(s, http.MethodGet, "/orderbook/cached", "")
	require.Equal(t, http.StatusOK, w.Code)
	var book dto.GetOrderbookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, []dto.Level{{Price: "101.00", Orders: 1, Quantity: 2}}, book.Asks)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/trades?limit=0", "").Code)
}

func TestRateLimitedSubmit(t *testing.T) {
	s, _ := newTestServer(t, WithRateLimiter(middleware.NewRateLimiter(0.001, 1)))
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/orders", `{"id":1,"side":"BUY","price":"100","quantity":5}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodPost, "/orders", `{"id":2,"side":"BUY","price":"100","quantity":5}`).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/orderbook", "").Code)
}

// streamRecorder adds the CloseNotifier gin's Stream expects.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEventsStreamsSSE(t *testing.T) {
	hub := stream.NewHub(16, quiet())
	s, _ := newTestServer(t, WithStream(hub))

	rec := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Handler().ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ev := domain.NewBookEvent(&domain.BookSnapshot{Symbol: "DEMO", Sequence: 1})
	require.NoError(t, hub.Publish(context.Background(), ev))
	hub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event:book\ndata:{\"type\":\"book\",\"payload\":{\"bids\":[],\"asks\":[]}}\n\n")
}
