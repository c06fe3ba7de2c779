package port

import (
	"context"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

type DatabaseRepository interface {
	// ListGroups returns the seller's groups with linked product titles joined in
	ListGroups(ctx context.Context, sellerID string) ([]domain.InventoryGroup, error)

	// GetGroup returns nil when the group does not exist for the seller
	GetGroup(ctx context.Context, sellerID, id string) (*domain.InventoryGroup, error)

	CreateGroup(ctx context.Context, group domain.InventoryGroup) error

	// UpdateGroup writes name, keys and records; a non-zero group.Version must
	// match the stored version
	UpdateGroup(ctx context.Context, group domain.InventoryGroup) error

	DeleteGroup(ctx context.Context, sellerID, id string) error

	// SetGroupProduct links the group to productID, or unlinks it when productID is empty
	SetGroupProduct(ctx context.Context, sellerID, groupID, productID string) error

	ListProducts(ctx context.Context, sellerID string) ([]domain.Product, error)

	// GetProduct returns nil when the product does not exist for the seller
	GetProduct(ctx context.Context, sellerID, id string) (*domain.Product, error)
}
