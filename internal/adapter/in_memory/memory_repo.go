package in_memory

import (
	"context"
	"errors"
	"sync"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

var _ port.Journal = (*MemoryRepo)(nil)

// MemoryRepo is a process-local journal.
type MemoryRepo struct {
	mu        sync.Mutex
	trades    map[string][]*domain.Trade
	snapshots map[string][]*domain.BookSnapshot
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		trades:    make(map[string][]*domain.Trade),
		snapshots: make(map[string][]*domain.BookSnapshot),
	}
}

func (r *MemoryRepo) SaveTrade(ctx context.Context, symbol string, t *domain.Trade) error {
	if t == nil {
		return errors.New("nil trade")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trades[symbol] = append(r.trades[symbol], &cp)
	return nil
}

func (r *MemoryRepo) SaveSnapshot(ctx context.Context, snap *domain.BookSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snap.Symbol] = append(r.snapshots[snap.Symbol], snap.DeepCopy())
	return nil
}

func (r *MemoryRepo) RecentTrades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.trades[symbol]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	res := make([]*domain.Trade, 0, limit)
	for i := len(all) - 1; i >= 0 && len(res) < limit; i-- {
		cp := *all[i]
		res = append(res, &cp)
	}
	return res, nil
}

// Snapshots returns every journaled snapshot of symbol in arrival order.
func (r *MemoryRepo) Snapshots(symbol string) []*domain.BookSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.BookSnapshot(nil), r.snapshots[symbol]...)
}
