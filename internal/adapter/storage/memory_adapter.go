package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/port"
)

// MemoryAdapter keeps groups and products in process for single-node
// development runs and tests. Pair it with MemoryCache.
type MemoryAdapter struct {
	mu       sync.Mutex
	groups   map[string]domain.InventoryGroup
	products map[string]domain.Product
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		groups:   make(map[string]domain.InventoryGroup),
		products: make(map[string]domain.Product),
	}
}

func (m *MemoryAdapter) ListGroups(ctx context.Context, sellerID string) ([]domain.InventoryGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups := []domain.InventoryGroup{}
	for _, g := range m.groups {
		if g.SellerID == sellerID {
			groups = append(groups, m.withTitle(g))
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt.Equal(groups[j].CreatedAt) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].CreatedAt.Before(groups[j].CreatedAt)
	})
	return groups, nil
}

func (m *MemoryAdapter) GetGroup(ctx context.Context, sellerID, id string) (*domain.InventoryGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok || g.SellerID != sellerID {
		return nil, nil
	}
	g = m.withTitle(g)
	return &g, nil
}

func (m *MemoryAdapter) CreateGroup(ctx context.Context, g domain.InventoryGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g = g.Clone()
	g.Version = 1
	g.LinkedProductID = ""
	g.LinkedProductTitle = ""
	m.groups[g.ID] = g
	return nil
}

func (m *MemoryAdapter) UpdateGroup(ctx context.Context, g domain.InventoryGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.groups[g.ID]
	if !ok || stored.SellerID != g.SellerID {
		return port.ErrNotFound
	}
	if g.Version != 0 && g.Version != stored.Version {
		return port.ErrOptimisticLock
	}

	c := g.Clone()
	stored.Name = c.Name
	stored.AssetKeys = c.AssetKeys
	stored.Records = c.Records
	stored.UpdatedAt = c.UpdatedAt
	stored.Version++
	m.groups[g.ID] = stored
	return nil
}

func (m *MemoryAdapter) DeleteGroup(ctx context.Context, sellerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[id]
	if !ok || g.SellerID != sellerID {
		return port.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *MemoryAdapter) SetGroupProduct(ctx context.Context, sellerID, groupID, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[groupID]
	if !ok || g.SellerID != sellerID {
		return port.ErrNotFound
	}
	if productID != "" {
		if holder := m.linkedGroup(productID); holder != "" && holder != groupID {
			return port.ErrAlreadyLinked
		}
	}
	g.LinkedProductID = productID
	m.groups[groupID] = g
	return nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context, sellerID string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := []domain.Product{}
	for _, p := range m.products {
		if p.SellerID == sellerID {
			p.LinkedGroupID = m.linkedGroup(p.ID)
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Title == products[j].Title {
			return products[i].ID < products[j].ID
		}
		return products[i].Title < products[j].Title
	})
	return products, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, sellerID, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok || p.SellerID != sellerID {
		return nil, nil
	}
	p.LinkedGroupID = m.linkedGroup(id)
	return &p, nil
}

func (m *MemoryAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.LinkedGroupID = ""
	m.products[p.ID] = p
	return nil
}

// MemoryCache is the in-process CacheRepository. Entries never expire.
type MemoryCache struct {
	mu             sync.Mutex
	products       map[string]domain.Product
	idempotencySet map[string]struct{}
	locks          map[string]*sync.Mutex
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		products:       make(map[string]domain.Product),
		idempotencySet: make(map[string]struct{}),
		locks:          make(map[string]*sync.Mutex),
	}
}

func (c *MemoryCache) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *MemoryCache) SetProduct(ctx context.Context, product domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = product
	return nil
}

func (c *MemoryCache) InvalidateProduct(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
	return nil
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.idempotencySet[key]; ok {
		return false, nil
	}
	c.idempotencySet[key] = struct{}{}
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.idempotencySet, key)
	return nil
}

func (c *MemoryCache) LockProduct(ctx context.Context, productID string) (func(context.Context) error, error) {
	c.mu.Lock()
	l, ok := c.locks[productID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[productID] = l
	}
	c.mu.Unlock()

	l.Lock()
	return func(context.Context) error {
		l.Unlock()
		return nil
	}, nil
}

func (m *MemoryAdapter) withTitle(g domain.InventoryGroup) domain.InventoryGroup {
	g = g.Clone()
	if g.LinkedProductID != "" {
		g.LinkedProductTitle = m.products[g.LinkedProductID].Title
	}
	return g
}

func (m *MemoryAdapter) linkedGroup(productID string) string {
	for _, g := range m.groups {
		if g.LinkedProductID == productID {
			return g.ID
		}
	}
	return ""
}
