package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
	"github.com/redis/go-redis/v9"
)

var (
	_ port.BookCache = (*RedisCache)(nil)
	_ port.EventSink = (*RedisCache)(nil)
)

// RedisCache keeps the latest book of every symbol under ob:<symbol> and publishes each
// event's wire JSON on events:<symbol>.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(addr string, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheFromClient(rdb, ttl)
}

func NewRedisCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(symbol string) string     { return "ob:" + symbol }
func Channel(symbol string) string { return "events:" + symbol }

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetBook(ctx context.Context, symbol string, snap *domain.BookSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(symbol), b, c.ttl).Err()
}

func (c *RedisCache) GetBook(ctx context.Context, symbol string) (*domain.BookSnapshot, error) {
	b, err := c.client.Get(ctx, key(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.BookSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key(symbol), err)
	}
	return &snap, nil
}

// Invalidate drops the cached book of symbol.
func (c *RedisCache) Invalidate(ctx context.Context, symbol string) error {
	return c.client.Del(ctx, key(symbol)).Err()
}

// Publish stores book snapshots and broadcasts every event in one MULTI/EXEC.
func (c *RedisCache) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var book []byte
	if ev.Type == domain.EventBook {
		if book, err = json.Marshal(ev.Book); err != nil {
			return err
		}
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if book != nil {
			p.Set(ctx, key(ev.Symbol), book, c.ttl)
		}
		p.Publish(ctx, Channel(ev.Symbol), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish %s #%d: %w", ev.Type, ev.Sequence, err)
	}
	return nil
}
