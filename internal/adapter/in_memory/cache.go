package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

type Cache struct {
	mu    sync.RWMutex
	store map[string]*domain.BookSnapshot
}

var _ port.BookCache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.BookSnapshot)}
}

func (c *Cache) SetBook(ctx context.Context, symbol string, snap *domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[symbol] = snap.DeepCopy()
	return nil
}

func (c *Cache) GetBook(ctx context.Context, symbol string) (*domain.BookSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.store[symbol]
	if !ok {
		return nil, nil
	}
	return snap.DeepCopy(), nil
}
