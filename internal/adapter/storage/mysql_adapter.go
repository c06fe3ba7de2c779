package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/port"
)

//go:embed schema.sql
var schemaSQL string

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const selectGroups = `
	SELECT g.id, g.seller_id, g.name, g.asset_keys, g.digital_assets,
		COALESCE(g.product_id, ''), COALESCE(p.title, ''),
		g.version, g.created_at, g.updated_at
	FROM inventory_groups g
	LEFT JOIN products p ON p.id = g.product_id`

const selectProducts = `
	SELECT p.id, p.seller_id, p.title, p.price, p.image_url,
		COALESCE(g.id, ''), p.created_at, p.updated_at
	FROM products p
	LEFT JOIN inventory_groups g ON g.product_id = p.id`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ListGroups(ctx context.Context, sellerID string) ([]domain.InventoryGroup, error) {
	rows, err := m.db.QueryContext(ctx, selectGroups+`
		WHERE g.seller_id = ?
		ORDER BY g.created_at, g.id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []domain.InventoryGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

func (m *MySQLAdapter) GetGroup(ctx context.Context, sellerID, id string) (*domain.InventoryGroup, error) {
	row := m.db.QueryRowContext(ctx, selectGroups+`
		WHERE g.seller_id = ? AND g.id = ?`, sellerID, id)

	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (m *MySQLAdapter) CreateGroup(ctx context.Context, g domain.InventoryGroup) error {
	keys, records, err := encodeGroup(g)
	if err != nil {
		return err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO inventory_groups (id, seller_id, name, asset_keys, digital_assets, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		g.ID, g.SellerID, g.Name, keys, records, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// UpdateGroup writes the group's fields. A non-zero Version is checked
// against the stored row (optimistic locking); zero skips the check.
func (m *MySQLAdapter) UpdateGroup(ctx context.Context, g domain.InventoryGroup) error {
	keys, records, err := encodeGroup(g)
	if err != nil {
		return err
	}

	query := `
		UPDATE inventory_groups
		SET name = ?, asset_keys = ?, digital_assets = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND seller_id = ?`
	args := []any{g.Name, keys, records, g.UpdatedAt, g.ID, g.SellerID}
	if g.Version != 0 {
		query += ` AND version = ?`
		args = append(args, g.Version)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	exists, err := m.groupExists(ctx, g.SellerID, g.ID)
	if err != nil {
		return err
	}
	if exists {
		return port.ErrOptimisticLock
	}
	return port.ErrNotFound
}

func (m *MySQLAdapter) DeleteGroup(ctx context.Context, sellerID, id string) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM inventory_groups WHERE id = ? AND seller_id = ?`, id, sellerID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrNotFound
	}
	return nil
}

// SetGroupProduct relies on the unique index over product_id to refuse a
// second group for the same product.
func (m *MySQLAdapter) SetGroupProduct(ctx context.Context, sellerID, groupID, productID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory_groups
		SET product_id = NULLIF(?, ''), updated_at = ?
		WHERE id = ? AND seller_id = ?`,
		productID, time.Now(), groupID, sellerID,
	)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return port.ErrAlreadyLinked
		}
		return fmt.Errorf("update group product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}
	exists, err := m.groupExists(ctx, sellerID, groupID)
	if err != nil {
		return err
	}
	if !exists {
		return port.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, sellerID string) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, selectProducts+`
		WHERE p.seller_id = ?
		ORDER BY p.title, p.id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, sellerID, id string) (*domain.Product, error) {
	row := m.db.QueryRowContext(ctx, selectProducts+`
		WHERE p.seller_id = ? AND p.id = ?`, sellerID, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProduct inserts or replaces a catalog product.
func (m *MySQLAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, seller_id, title, price, image_url)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE seller_id = VALUES(seller_id), title = VALUES(title),
			price = VALUES(price), image_url = VALUES(image_url), updated_at = CURRENT_TIMESTAMP(3)`,
		p.ID, p.SellerID, p.Title, p.Price, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) groupExists(ctx context.Context, sellerID, id string) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, `
		SELECT 1 FROM inventory_groups WHERE id = ? AND seller_id = ?`, id, sellerID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query group: %w", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*domain.InventoryGroup, error) {
	var (
		g       domain.InventoryGroup
		keys    []byte
		records []byte
	)
	err := row.Scan(&g.ID, &g.SellerID, &g.Name, &keys, &records,
		&g.LinkedProductID, &g.LinkedProductTitle,
		&g.Version, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}

	if err := json.Unmarshal(keys, &g.AssetKeys); err != nil {
		return nil, fmt.Errorf("decode asset keys of group %s: %w", g.ID, err)
	}
	if err := json.Unmarshal(records, &g.Records); err != nil {
		return nil, fmt.Errorf("decode digital assets of group %s: %w", g.ID, err)
	}
	return &g, nil
}

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Price, &p.ImageURL,
		&p.LinkedGroupID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

func encodeGroup(g domain.InventoryGroup) (keys, records []byte, err error) {
	assetKeys := g.AssetKeys
	if assetKeys == nil {
		assetKeys = []string{}
	}
	digitalAssets := g.Records
	if digitalAssets == nil {
		digitalAssets = []domain.Record{}
	}

	if keys, err = json.Marshal(assetKeys); err != nil {
		return nil, nil, fmt.Errorf("encode asset keys: %w", err)
	}
	if records, err = json.Marshal(digitalAssets); err != nil {
		return nil, nil, fmt.Errorf("encode digital assets: %w", err)
	}
	return keys, records, nil
}
