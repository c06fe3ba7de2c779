package port

import (
	"context"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

// InventoryAPI is the remote inventory API as seen by the reconciliation manager.
type InventoryAPI interface {
	ListGroups(ctx context.Context) ([]domain.InventoryGroup, error)

	// CreateGroup persists a new group and returns it with its assigned ID
	CreateGroup(ctx context.Context, payload domain.GroupPayload) (*domain.InventoryGroup, error)

	UpdateGroup(ctx context.Context, id string, payload domain.GroupPayload) (*domain.InventoryGroup, error)

	DeleteGroup(ctx context.Context, id string) error

	LinkProduct(ctx context.Context, groupID, productID string) error

	UnlinkProduct(ctx context.Context, groupID string) error

	GetProduct(ctx context.Context, id string) (*domain.Product, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
}
