// Package simulator generates a synthetic order flow around a reference price.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/olyamironova/auction-engine/internal/core"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	minPrice = 99.0
	maxPrice = 101.0
	minQty   = 1
	maxQty   = 100
)

// Generator produces orders with ids counting up from 1. Even ids buy, odd ids sell.
// Prices are uniform in [99, 101] rounded to cents; quantities uniform in [1, 100].
type Generator struct {
	rnd    *rand.Rand
	nextID uint64
}

// NewGenerator seeds a reproducible generator. seed 0 picks a random seed.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) Next() domain.Order {
	g.nextID++
	side := domain.Sell
	if g.nextID%2 == 0 {
		side = domain.Buy
	}
	cents := math.Round((minPrice + g.rnd.Float64()*(maxPrice-minPrice)) * 100)
	return domain.Order{
		ID:       g.nextID,
		Side:     side,
		Price:    decimal.New(int64(cents), -domain.PriceDigits),
		Quantity: uint32(minQty + g.rnd.IntN(maxQty-minQty+1)),
	}
}

// Submitter is what the simulator feeds.
type Submitter interface {
	Process(ctx context.Context, o domain.Order) ([]domain.Trade, error)
}

type Simulator struct {
	gen      *Generator
	target   Submitter
	interval time.Duration
	limit    uint64
	log      *slog.Logger
}

// New returns a simulator submitting one order per interval. limit 0 means unbounded.
func New(target Submitter, gen *Generator, interval time.Duration, limit uint64, log *slog.Logger) *Simulator {
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{gen: gen, target: target, interval: interval, limit: limit, log: log.With("component", "simulator")}
}

// Run submits orders until ctx is done or the limit is reached. Rejections are logged and
// skipped; any other error stops the run.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.InfoContext(ctx, "starting order simulation", "interval", s.interval, "limit", s.limit)

	var sent uint64
	for s.limit == 0 || sent < s.limit {
		o := s.gen.Next()
		s.log.InfoContext(ctx, fmt.Sprintf("NEW ORDER: ID %d %s %d @ %s", o.ID, o.Side, o.Quantity, o.Price.StringFixed(domain.PriceDigits)))
		if _, err := s.target.Process(ctx, o); err != nil {
			if !core.IsRejection(err) {
				return fmt.Errorf("simulator: order %d: %w", o.ID, err)
			}
			s.log.WarnContext(ctx, "simulated order rejected", "order_id", o.ID, "error", err)
		}
		sent++

		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
	return nil
}
