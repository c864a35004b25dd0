package pg

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepo connects to AUCTION_TEST_POSTGRES_DSN and skips without it.
func newTestRepo(t *testing.T) *PgRepo {
	t.Helper()
	dsn := os.Getenv("AUCTION_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUCTION_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repo, err := NewPgRepo(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestJournalRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	symbol := "T" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, repo.SaveTrade(ctx, symbol, &domain.Trade{
			ID:          uuid.NewString(),
			BuyOrderID:  i,
			SellOrderID: i + 10,
			Price:       decimal.RequireFromString("100.5"),
			Quantity:    uint32(i * 10),
			Maker:       domain.Sell,
			Sequence:    i,
			Timestamp:   now,
		}))
	}

	trades, err := repo.RecentTrades(ctx, symbol, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, uint64(3), trades[0].Sequence)
	assert.Equal(t, "100.50", trades[0].Price.StringFixed(2))
	assert.Equal(t, domain.Sell, trades[0].Maker)
	assert.True(t, now.Equal(trades[0].Timestamp))

	none, err := repo.LatestSnapshot(ctx, symbol)
	require.NoError(t, err)
	assert.Nil(t, none)

	snap := &domain.BookSnapshot{
		Symbol:    symbol,
		Bids:      []domain.Level{{Price: decimal.RequireFromString("99"), Orders: 2, Quantity: 40}},
		Asks:      []domain.Level{},
		Sequence:  3,
		Timestamp: now,
	}
	require.NoError(t, repo.SaveSnapshot(ctx, snap))
	got, err := repo.LatestSnapshot(ctx, symbol)
	require.NoError(t, err)
	assert.True(t, snap.Equal(got))
}

func TestRecentTradesOrdersFillsOfOneAggressor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	symbol := "T" + uuid.NewString()[:8]
	now := time.Now().UTC()

	// one aggressor walking three levels: same sequence, same timestamp, inserted out of order
	for _, ord := range []int{2, 3, 1} {
		require.NoError(t, repo.SaveTrade(ctx, symbol, &domain.Trade{
			ID:          uuid.NewString(),
			BuyOrderID:  9,
			SellOrderID: uint64(ord),
			Price:       decimal.NewFromInt(int64(100 + ord)),
			Quantity:    1,
			Maker:       domain.Sell,
			Sequence:    9,
			Ordinal:     ord,
			Timestamp:   now,
		}))
	}

	trades, err := repo.RecentTrades(ctx, symbol, 10)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	for i, want := range []int{3, 2, 1} {
		assert.Equal(t, want, trades[i].Ordinal)
		assert.Equal(t, uint64(want), trades[i].SellOrderID)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Migrate(context.Background()))
}

func TestNilRecordsRejected(t *testing.T) {
	repo := &PgRepo{}
	assert.Error(t, repo.SaveTrade(context.Background(), "DEMO", nil))
	assert.Error(t, repo.SaveSnapshot(context.Background(), nil))
}
