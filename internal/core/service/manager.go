package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/port"
)

var (
	ErrSaveInventoryFirst = errors.New("save inventory first")
	ErrLastRecord         = errors.New("an inventory group must keep at least one digital asset")
	ErrRecordIndex        = errors.New("digital asset index out of range")
	ErrNotEditing         = errors.New("inventory group is not open for editing")
	ErrInFlight           = errors.New("action already in progress")
)

// Action names an operation whose network call can be in flight.
type Action string

const (
	ActionLoad       Action = "load"
	ActionSave       Action = "save"
	ActionChangeKeys Action = "change-keys"
	ActionLink       Action = "link"
	ActionUnlink     Action = "unlink"
	ActionDelete     Action = "delete"
)

type flightKey struct {
	action Action
	ref    string
}

type ManagerOption func(*Manager)

// WithClock sets the clock notices expire against.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.notices = NewNoticeBoard(now) }
}

// WithVersionCheck makes saves carry the group's version so the server
// rejects writes over a newer copy.
func WithVersionCheck() ManagerOption {
	return func(m *Manager) { m.versionCheck = true }
}

// Manager owns the seller's inventory groups and the working copy of the
// group open for editing. Field edits stay in the working copy until
// CommitAndSave; schema changes and link changes are persisted at once.
//
// The mutex is never held across a call to the API.
type Manager struct {
	api          port.InventoryAPI
	logger       *zap.Logger
	notices      *NoticeBoard
	versionCheck bool

	mu       sync.Mutex
	groups   []domain.InventoryGroup
	products []domain.Product
	openRef  string
	working  []domain.Record
	inFlight map[flightKey]struct{}
}

func NewManager(api port.InventoryAPI, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		api:      api,
		logger:   logger,
		notices:  NewNoticeBoard(time.Now),
		inFlight: make(map[flightKey]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches groups and the product list used for link selection.
func (m *Manager) Load(ctx context.Context) error {
	done, err := m.begin(ActionLoad, "")
	if err != nil {
		return err
	}
	defer done()

	if err := m.refresh(ctx); err != nil {
		m.notices.Error(err)
		return err
	}

	products, err := m.api.ListProducts(ctx)
	if err != nil {
		err = fmt.Errorf("list products: %w", err)
		m.notices.Error(err)
		return err
	}

	m.mu.Lock()
	m.products = products
	m.mu.Unlock()
	return nil
}

// NewGroup adds an unsaved group and returns its local reference.
func (m *Manager) NewGroup(name string, keys []string) string {
	g := domain.NewInventoryGroup(name, keys)
	g.LocalRef = "local-" + uuid.NewString()

	m.mu.Lock()
	m.groups = append(m.groups, g)
	m.mu.Unlock()

	m.logger.Debug("inventory group added locally", zap.String("ref", g.LocalRef))
	return g.LocalRef
}

// Open starts editing a group with a fresh working copy of its records.
func (m *Manager) Open(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(ref)
	if idx < 0 {
		return ErrGroupNotFound
	}
	m.openRef = ref
	m.working = domain.CloneRecords(m.groups[idx].Records)
	return nil
}

// Close discards the working copy.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openRef = ""
	m.working = nil
}

// WorkingCopy returns a copy of the open group's unsaved records.
func (m *Manager) WorkingCopy(ref string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(ref); err != nil {
		return nil, err
	}
	return domain.CloneRecords(m.working), nil
}

func (m *Manager) AddDigitalAsset(ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(ref); err != nil {
		return err
	}
	g := m.groups[m.indexOf(ref)]
	m.working = append(m.working, domain.NewRecord(g.AssetKeys))
	return nil
}

// RemoveDigitalAsset drops one record from the working copy. The last
// remaining record cannot be removed.
func (m *Manager) RemoveDigitalAsset(ref string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(ref); err != nil {
		return err
	}
	if index < 0 || index >= len(m.working) {
		m.notices.Error(ErrRecordIndex)
		return ErrRecordIndex
	}
	if len(m.working) == 1 {
		m.notices.Error(ErrLastRecord)
		return ErrLastRecord
	}
	m.working = append(m.working[:index:index], m.working[index+1:]...)
	return nil
}

func (m *Manager) UpdateFieldValue(ref string, index int, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireOpen(ref); err != nil {
		return err
	}
	if index < 0 || index >= len(m.working) {
		m.notices.Error(ErrRecordIndex)
		return ErrRecordIndex
	}
	if m.working[index] == nil {
		m.working[index] = domain.Record{}
	}
	m.working[index][key] = value
	return nil
}

// ChangeAssetKeys replaces the group's schema, rebuilds every saved record
// against it and persists the group immediately. Unsaved field edits are
// not part of this save. Once it succeeds an open working copy is rebuilt
// against the new keys, keeping edits to retained keys.
func (m *Manager) ChangeAssetKeys(ctx context.Context, ref string, keys []string) error {
	done, err := m.begin(ActionChangeKeys, ref)
	if err != nil {
		return err
	}
	defer done()

	keys = domain.NormalizeAssetKeys(keys)

	m.mu.Lock()
	idx := m.indexOf(ref)
	if idx < 0 {
		m.mu.Unlock()
		m.notices.Error(ErrGroupNotFound)
		return ErrGroupNotFound
	}
	g := &m.groups[idx]
	g.Records = domain.ReconcileRecords(g.Records, keys)
	g.AssetKeys = keys
	snapshot := g.Clone()
	m.mu.Unlock()

	m.logger.Debug("asset keys changed", zap.String("ref", ref), zap.Strings("keys", keys))

	savedRef, err := m.persist(ctx, snapshot)
	if err != nil {
		m.notices.Error(err)
		return err
	}

	m.mu.Lock()
	if m.openRef != "" && m.openRef == savedRef {
		m.working = domain.ReconcileRecords(m.working, keys)
	}
	m.mu.Unlock()

	m.notices.Success("Asset keys updated")
	return nil
}

// CommitAndSave writes the working copy into the group and upserts it. On
// success the group list is re-fetched and the working copy re-synced; on
// failure the working copy is kept.
func (m *Manager) CommitAndSave(ctx context.Context, ref string) error {
	done, err := m.begin(ActionSave, ref)
	if err != nil {
		return err
	}
	defer done()

	m.mu.Lock()
	if err := m.requireOpen(ref); err != nil {
		m.mu.Unlock()
		m.notices.Error(err)
		return err
	}
	g := &m.groups[m.indexOf(ref)]
	g.Records = domain.CloneRecords(m.working)
	snapshot := g.Clone()
	m.mu.Unlock()

	savedRef, err := m.persist(ctx, snapshot)
	if err != nil {
		m.notices.Error(err)
		return err
	}

	m.mu.Lock()
	if m.openRef == savedRef {
		if idx := m.indexOf(savedRef); idx >= 0 {
			m.working = domain.CloneRecords(m.groups[idx].Records)
		}
	}
	m.mu.Unlock()

	m.notices.Success("Inventory saved")
	return nil
}

// LinkProduct links a persisted group to a product. The local group is
// patched on success; the list is not re-fetched.
func (m *Manager) LinkProduct(ctx context.Context, ref, productID string) error {
	return m.setLink(ctx, ActionLink, ref, productID)
}

func (m *Manager) UnlinkProduct(ctx context.Context, ref string) error {
	return m.setLink(ctx, ActionUnlink, ref, "")
}

func (m *Manager) setLink(ctx context.Context, action Action, ref, productID string) error {
	m.mu.Lock()
	idx := m.indexOf(ref)
	if idx < 0 {
		m.mu.Unlock()
		m.notices.Error(ErrGroupNotFound)
		return ErrGroupNotFound
	}
	id := m.groups[idx].ID
	m.mu.Unlock()

	if id == "" {
		m.notices.Error(ErrSaveInventoryFirst)
		return ErrSaveInventoryFirst
	}

	done, err := m.begin(action, ref)
	if err != nil {
		return err
	}
	defer done()

	if action == ActionLink {
		err = m.api.LinkProduct(ctx, id, productID)
	} else {
		err = m.api.UnlinkProduct(ctx, id)
	}
	if err != nil {
		err = fmt.Errorf("%s product: %w", action, err)
		m.notices.Error(err)
		return err
	}

	m.mu.Lock()
	title := m.productTitle(productID)
	m.mu.Unlock()
	if productID != "" && title == "" {
		title = m.lookupTitle(ctx, productID)
	}

	m.mu.Lock()
	if idx := m.indexOf(ref); idx >= 0 {
		m.groups[idx].LinkedProductID = productID
		m.groups[idx].LinkedProductTitle = title
	}
	m.mu.Unlock()

	m.logger.Debug("inventory link changed", zap.String("group_id", id), zap.String("product_id", productID))
	if action == ActionLink {
		m.notices.Success("Product linked")
	} else {
		m.notices.Success("Product unlinked")
	}
	return nil
}

// DeleteGroup removes a group, calling the API only if it was persisted.
func (m *Manager) DeleteGroup(ctx context.Context, ref string) error {
	m.mu.Lock()
	idx := m.indexOf(ref)
	if idx < 0 {
		m.mu.Unlock()
		m.notices.Error(ErrGroupNotFound)
		return ErrGroupNotFound
	}
	id := m.groups[idx].ID
	if id == "" {
		m.removeLocked(ref)
		m.mu.Unlock()
		m.notices.Success("Inventory deleted")
		return nil
	}
	m.mu.Unlock()

	done, err := m.begin(ActionDelete, ref)
	if err != nil {
		return err
	}
	defer done()

	if err := m.api.DeleteGroup(ctx, id); err != nil {
		err = fmt.Errorf("delete group: %w", err)
		m.notices.Error(err)
		return err
	}

	m.mu.Lock()
	m.removeLocked(ref)
	m.mu.Unlock()

	m.notices.Success("Inventory deleted")
	return nil
}

// Groups returns a snapshot of every group in display order.
func (m *Manager) Groups() []domain.InventoryGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.InventoryGroup, len(m.groups))
	for i, g := range m.groups {
		out[i] = g.Clone()
	}
	return out
}

// Group returns a snapshot of one group.
func (m *Manager) Group(ref string) (domain.InventoryGroup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(ref)
	if idx < 0 {
		return domain.InventoryGroup{}, false
	}
	return m.groups[idx].Clone(), true
}

// View returns snapshots of the groups matching term and filter.
func (m *Manager) View(term string, filter domain.LinkFilter) []domain.InventoryGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	indices := domain.FilterGroups(m.groups, term, filter)
	out := make([]domain.InventoryGroup, len(indices))
	for i, idx := range indices {
		out[i] = m.groups[idx].Clone()
	}
	return out
}

func (m *Manager) Products() []domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product(nil), m.products...)
}

func (m *Manager) Notices() []Notice {
	return m.notices.Active()
}

// InFlight reports whether action is running for the group.
func (m *Manager) InFlight(action Action, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[flightKey{action, ref}]
	return ok
}

// persist upserts the group snapshot and re-fetches the list. It returns
// the reference the group is known by afterwards.
func (m *Manager) persist(ctx context.Context, g domain.InventoryGroup) (string, error) {
	payload := g.Payload()
	if m.versionCheck {
		payload.Version = g.Version
	}

	var (
		saved *domain.InventoryGroup
		err   error
	)
	if g.IsPersisted() {
		saved, err = m.api.UpdateGroup(ctx, g.ID, payload)
	} else {
		saved, err = m.api.CreateGroup(ctx, payload)
	}
	if err != nil {
		return "", fmt.Errorf("save inventory: %w", err)
	}

	ref := g.Ref()
	if !g.IsPersisted() && saved != nil && saved.ID != "" {
		m.mu.Lock()
		if idx := m.indexOf(g.LocalRef); idx >= 0 {
			m.groups[idx].ID = saved.ID
			m.groups[idx].LocalRef = ""
		}
		if m.openRef == g.LocalRef {
			m.openRef = saved.ID
		}
		m.mu.Unlock()
		ref = saved.ID
	}

	if err := m.refresh(ctx); err != nil {
		return ref, err
	}
	return ref, nil
}

// refresh replaces persisted groups with the API's list. Groups that were
// never saved are kept at the end of the list.
func (m *Manager) refresh(ctx context.Context) error {
	groups, err := m.api.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	for i := range groups {
		g := &groups[i]
		if !g.IsLinked() || g.LinkedProductTitle != "" {
			continue
		}
		g.LinkedProductTitle = m.lookupTitle(ctx, g.LinkedProductID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range m.groups {
		if !g.IsPersisted() {
			groups = append(groups, g)
		}
	}
	m.groups = groups
	if m.openRef != "" && m.indexOf(m.openRef) < 0 {
		m.openRef = ""
		m.working = nil
	}
	return nil
}

func (m *Manager) begin(action Action, ref string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := flightKey{action, ref}
	if _, ok := m.inFlight[key]; ok {
		return nil, ErrInFlight
	}
	m.inFlight[key] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inFlight, key)
		m.mu.Unlock()
	}, nil
}

func (m *Manager) requireOpen(ref string) error {
	if ref == "" || ref != m.openRef || m.indexOf(ref) < 0 {
		return ErrNotEditing
	}
	return nil
}

func (m *Manager) indexOf(ref string) int {
	if ref == "" {
		return -1
	}
	for i, g := range m.groups {
		if g.Ref() == ref {
			return i
		}
	}
	return -1
}

func (m *Manager) removeLocked(ref string) {
	idx := m.indexOf(ref)
	if idx < 0 {
		return
	}
	m.groups = append(m.groups[:idx:idx], m.groups[idx+1:]...)
	if m.openRef == ref {
		m.openRef = ""
		m.working = nil
	}
}

func (m *Manager) productTitle(id string) string {
	if id == "" {
		return ""
	}
	for _, p := range m.products {
		if p.ID == id {
			return p.Title
		}
	}
	return ""
}

// lookupTitle asks the API for a product title the cached list lacks. A
// failed lookup leaves the title empty.
func (m *Manager) lookupTitle(ctx context.Context, productID string) string {
	product, err := m.api.GetProduct(ctx, productID)
	if err != nil || product == nil {
		m.logger.Warn("resolve linked product failed", zap.String("product_id", productID), zap.Error(err))
		return ""
	}
	return product.Title
}
