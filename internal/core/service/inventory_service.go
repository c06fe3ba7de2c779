package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/port"
)

var (
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrGroupNotFound        = errors.New("inventory group not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyLinked = errors.New("product already linked")
	ErrVersionConflict      = errors.New("inventory group was modified by someone else")
	ErrProductBusy          = errors.New("product is being linked, retry")
	ErrUploadsDisabled      = errors.New("uploads are not configured")
	ErrUnsupportedMediaType = errors.New("unsupported image type")
	ErrUploadTooLarge       = errors.New("file size exceeds limit")
)

const MaxUploadSize int64 = 5 * 1024 * 1024

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidationError reports which payload fields failed which rule.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, tag := range e.Fields {
		parts = append(parts, f+": "+tag)
	}
	sort.Strings(parts)
	return "invalid payload (" + strings.Join(parts, ", ") + ")"
}

// CleanupJob asks the workers to release what a deleted group referenced.
type CleanupJob struct {
	SellerID  string
	GroupID   string
	ProductID string
}

type InventoryService struct {
	db           port.DatabaseRepository
	cache        port.CacheRepository
	objects      port.ObjectStorage
	validate     *validator.Validate
	logger       *zap.Logger
	cleanupQueue chan CleanupJob
	now          func() time.Time
}

// NewInventoryService wires the server-side rules. objects may be nil, in
// which case uploads fail with ErrUploadsDisabled.
func NewInventoryService(db port.DatabaseRepository, cache port.CacheRepository, objects port.ObjectStorage, queueSize int, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		db:           db,
		cache:        cache,
		objects:      objects,
		validate:     validator.New(),
		logger:       logger,
		cleanupQueue: make(chan CleanupJob, queueSize),
		now:          time.Now,
	}
}

func (s *InventoryService) ListGroups(ctx context.Context, sellerID string) ([]domain.InventoryGroup, error) {
	groups, err := s.db.ListGroups(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *InventoryService) CreateGroup(ctx context.Context, sellerID string, payload domain.GroupPayload, idempotencyKey string) (*domain.InventoryGroup, error) {
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}

	claim := ""
	if idempotencyKey != "" {
		claim = fmt.Sprintf("inventory:create:%s:%s", sellerID, idempotencyKey)
		ok, err := s.cache.SetIdempotency(ctx, claim)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
	}

	now := s.now()
	group := domain.InventoryGroup{
		ID:        uuid.NewString(),
		SellerID:  sellerID,
		Name:      strings.TrimSpace(payload.Name),
		AssetKeys: domain.NormalizeAssetKeys(payload.AssetKeys),
		Records:   domain.CloneRecords(payload.Records),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if group.Records == nil {
		group.Records = []domain.Record{}
	}

	if err := s.db.CreateGroup(ctx, group); err != nil {
		// Nothing was stored, so the same key may be retried.
		if claim != "" {
			if rerr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), claim); rerr != nil {
				s.logger.Warn("release idempotency key failed", zap.String("key", claim), zap.Error(rerr))
			}
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("inventory group created",
		zap.String("seller_id", sellerID),
		zap.String("group_id", group.ID),
		zap.Int("records", len(group.Records)))

	if payload.ProductID != "" {
		if err := s.setLink(ctx, sellerID, group.ID, payload.ProductID); err != nil {
			return nil, err
		}
	}

	return s.getGroup(ctx, sellerID, group.ID)
}

func (s *InventoryService) UpdateGroup(ctx context.Context, sellerID, id string, payload domain.GroupPayload) (*domain.InventoryGroup, error) {
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}

	existing, err := s.getGroup(ctx, sellerID, id)
	if err != nil {
		return nil, err
	}

	existing.Name = strings.TrimSpace(payload.Name)
	existing.AssetKeys = domain.NormalizeAssetKeys(payload.AssetKeys)
	existing.Records = domain.CloneRecords(payload.Records)
	if existing.Records == nil {
		existing.Records = []domain.Record{}
	}
	existing.Version = payload.Version
	existing.UpdatedAt = s.now()

	if err := s.db.UpdateGroup(ctx, *existing); err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			return nil, ErrVersionConflict
		}
		if errors.Is(err, port.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("update group: %w", err)
	}

	if payload.ProductID != existing.LinkedProductID {
		if err := s.setLink(ctx, sellerID, id, payload.ProductID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("inventory group updated",
		zap.String("seller_id", sellerID),
		zap.String("group_id", id),
		zap.Int("asset_keys", len(existing.AssetKeys)),
		zap.Int("records", len(existing.Records)))

	return s.getGroup(ctx, sellerID, id)
}

func (s *InventoryService) DeleteGroup(ctx context.Context, sellerID, id string) error {
	group, err := s.getGroup(ctx, sellerID, id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteGroup(ctx, sellerID, id); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("delete group: %w", err)
	}
	s.logger.Info("inventory group deleted", zap.String("seller_id", sellerID), zap.String("group_id", id))

	if group.LinkedProductID == "" {
		return nil
	}

	job := CleanupJob{SellerID: sellerID, GroupID: id, ProductID: group.LinkedProductID}
	select {
	case s.cleanupQueue <- job:
	case <-ctx.Done():
		s.logger.Warn("cleanup job dropped", zap.String("group_id", id), zap.Error(ctx.Err()))
	}
	return nil
}

func (s *InventoryService) LinkProduct(ctx context.Context, sellerID, groupID, productID string) error {
	if productID == "" {
		return ErrProductNotFound
	}
	return s.setLink(ctx, sellerID, groupID, productID)
}

func (s *InventoryService) UnlinkProduct(ctx context.Context, sellerID, groupID string) error {
	return s.setLink(ctx, sellerID, groupID, "")
}

// setLink points groupID at productID (or nowhere when productID is empty),
// holding the product lock so two groups cannot claim one product.
func (s *InventoryService) setLink(ctx context.Context, sellerID, groupID, productID string) error {
	group, err := s.getGroup(ctx, sellerID, groupID)
	if err != nil {
		return err
	}
	previous := group.LinkedProductID

	if productID != "" {
		unlock, err := s.cache.LockProduct(ctx, productID)
		if errors.Is(err, port.ErrLockTimeout) {
			return ErrProductBusy
		}
		if err != nil {
			return fmt.Errorf("lock product %s: %w", productID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release product lock failed", zap.String("product_id", productID), zap.Error(err))
			}
		}()

		product, err := s.db.GetProduct(ctx, sellerID, productID)
		if err != nil {
			return fmt.Errorf("get product: %w", err)
		}
		if product == nil {
			return ErrProductNotFound
		}
		if product.LinkedGroupID != "" && product.LinkedGroupID != groupID {
			return ErrProductAlreadyLinked
		}
	}

	if err := s.db.SetGroupProduct(ctx, sellerID, groupID, productID); err != nil {
		switch {
		case errors.Is(err, port.ErrAlreadyLinked):
			return ErrProductAlreadyLinked
		case errors.Is(err, port.ErrNotFound):
			return ErrGroupNotFound
		}
		return fmt.Errorf("set group product: %w", err)
	}

	for _, id := range []string{previous, productID} {
		if id == "" {
			continue
		}
		if err := s.cache.InvalidateProduct(ctx, id); err != nil {
			s.logger.Warn("invalidate product cache failed", zap.String("product_id", id), zap.Error(err))
		}
	}

	s.logger.Info("inventory link changed",
		zap.String("seller_id", sellerID),
		zap.String("group_id", groupID),
		zap.String("previous_product_id", previous),
		zap.String("product_id", productID))
	return nil
}

func (s *InventoryService) ListProducts(ctx context.Context, sellerID string) ([]domain.Product, error) {
	products, err := s.db.ListProducts(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetProduct reads through the product cache.
func (s *InventoryService) GetProduct(ctx context.Context, sellerID, id string) (*domain.Product, error) {
	cached, err := s.cache.GetProduct(ctx, id)
	if err != nil {
		s.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
	}
	if cached != nil && cached.SellerID == sellerID {
		return cached, nil
	}

	product, err := s.db.GetProduct(ctx, sellerID, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	if err := s.cache.SetProduct(ctx, *product); err != nil {
		s.logger.Warn("product cache write failed", zap.String("product_id", id), zap.Error(err))
	}
	return product, nil
}

// UploadImage stores an image and returns its public URL.
func (s *InventoryService) UploadImage(ctx context.Context, sellerID, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.objects == nil {
		return "", ErrUploadsDisabled
	}
	if size > MaxUploadSize {
		return "", ErrUploadTooLarge
	}
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", ErrUnsupportedMediaType
	}

	objectName := path.Join("uploads", sellerID, uuid.NewString()+ext)
	if err := s.objects.Upload(ctx, objectName, r, size, contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", objectName, err)
	}
	s.logger.Info("image uploaded",
		zap.String("seller_id", sellerID),
		zap.String("filename", filename),
		zap.String("object", objectName),
		zap.Int64("size", size))
	return s.objects.PublicURL(objectName), nil
}

// ProcessCleanup releases cache entries that referenced a deleted group.
func (s *InventoryService) ProcessCleanup(ctx context.Context, job CleanupJob) error {
	if err := s.cache.InvalidateProduct(ctx, job.ProductID); err != nil {
		return fmt.Errorf("invalidate product %s: %w", job.ProductID, err)
	}
	return nil
}

func (s *InventoryService) GetCleanupQueue() <-chan CleanupJob {
	return s.cleanupQueue
}

func (s *InventoryService) Close() {
	close(s.cleanupQueue)
}

func (s *InventoryService) getGroup(ctx context.Context, sellerID, id string) (*domain.InventoryGroup, error) {
	group, err := s.db.GetGroup(ctx, sellerID, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

func (s *InventoryService) validatePayload(payload domain.GroupPayload) error {
	err := s.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate payload: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		fields[ve.Field()] = ve.Tag()
	}
	return &ValidationError{Fields: fields}
}
