package port

import (
	"context"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

type CacheRepository interface {
	// GetProduct returns nil without error on a cache miss
	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	SetProduct(ctx context.Context, product domain.Product) error

	InvalidateProduct(ctx context.Context, id string) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// LockProduct serialises link changes for one product; the returned func releases the lock
	LockProduct(ctx context.Context, productID string) (func(context.Context) error, error)
}
