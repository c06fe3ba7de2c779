package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"sellerId,omitempty"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"imageUrl,omitempty"`
	LinkedGroupID string          `json:"linkedGroupId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt,omitempty"`
	UpdatedAt     time.Time       `json:"updatedAt,omitempty"`
}

// GroupPayload is the create/update body for an inventory group.
type GroupPayload struct {
	Name      string   `json:"inventoryGroup" validate:"required,max=255"`
	Records   []Record `json:"digitalAssets" validate:"dive,max=64"`
	AssetKeys []string `json:"assetKeys" validate:"max=64,dive,max=128"`
	ProductID string   `json:"productId,omitempty" validate:"max=64"`
	// Version, when non-zero, must match the stored group's version.
	Version int `json:"version,omitempty" validate:"gte=0"`
}

// LinkRequest associates a group (the storefront calls it a variant) with a product.
type LinkRequest struct {
	GroupID   string `json:"variantId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
}

type UnlinkRequest struct {
	GroupID string `json:"variantId" validate:"required"`
}
