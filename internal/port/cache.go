package port

import (
	"context"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// BookCache is the latest-snapshot read model. GetBook returns (nil, nil) on a miss.
type BookCache interface {
	SetBook(ctx context.Context, symbol string, snap *domain.BookSnapshot) error
	GetBook(ctx context.Context, symbol string) (*domain.BookSnapshot, error)
}
