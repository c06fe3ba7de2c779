package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/digital-inventory/internal/core/domain"
)

// Mock InventoryAPI
type fakeAPI struct {
	mu       sync.Mutex
	groups   []domain.InventoryGroup
	products []domain.Product
	calls    []string
	created  []domain.GroupPayload
	updated  []domain.GroupPayload
	links    [][2]string
	nextID   int
	errs     map[string]error
	// linkGate, when set, blocks LinkProduct until it is closed
	linkGate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{errs: make(map[string]error)}
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeAPI) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeAPI) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) ListGroups(ctx context.Context) ([]domain.InventoryGroup, error) {
	if err := f.record("ListGroups"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.InventoryGroup, len(f.groups))
	for i, g := range f.groups {
		out[i] = g.Clone()
	}
	return out, nil
}

func (f *fakeAPI) CreateGroup(ctx context.Context, payload domain.GroupPayload) (*domain.InventoryGroup, error) {
	if err := f.record("CreateGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created = append(f.created, payload)
	g := domain.InventoryGroup{
		ID:              fmt.Sprintf("g-%d", f.nextID),
		Name:            payload.Name,
		AssetKeys:       payload.AssetKeys,
		Records:         domain.CloneRecords(payload.Records),
		LinkedProductID: payload.ProductID,
		Version:         1,
	}
	f.groups = append(f.groups, g)
	out := g.Clone()
	return &out, nil
}

func (f *fakeAPI) UpdateGroup(ctx context.Context, id string, payload domain.GroupPayload) (*domain.InventoryGroup, error) {
	if err := f.record("UpdateGroup"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, payload)
	for i := range f.groups {
		if f.groups[i].ID != id {
			continue
		}
		f.groups[i].Name = payload.Name
		f.groups[i].AssetKeys = payload.AssetKeys
		f.groups[i].Records = domain.CloneRecords(payload.Records)
		f.groups[i].LinkedProductID = payload.ProductID
		f.groups[i].Version++
		out := f.groups[i].Clone()
		return &out, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) DeleteGroup(ctx context.Context, id string) error {
	if err := f.record("DeleteGroup"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.groups {
		if f.groups[i].ID == id {
			f.groups = append(f.groups[:i], f.groups[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeAPI) LinkProduct(ctx context.Context, groupID, productID string) error {
	if f.linkGate != nil {
		<-f.linkGate
	}
	if err := f.record("LinkProduct"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, [2]string{groupID, productID})
	for i := range f.groups {
		if f.groups[i].ID == groupID {
			f.groups[i].LinkedProductID = productID
		}
	}
	return nil
}

func (f *fakeAPI) UnlinkProduct(ctx context.Context, groupID string) error {
	if err := f.record("UnlinkProduct"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.groups {
		if f.groups[i].ID == groupID {
			f.groups[i].LinkedProductID = ""
		}
	}
	return nil
}

func (f *fakeAPI) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := f.record("GetProduct"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeAPI) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := f.record("ListProducts"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Product(nil), f.products...), nil
}

// seedSaved returns a manager holding one persisted group with the given records.
func seedSaved(t *testing.T, api *fakeAPI, keys []string, records ...domain.Record) (*Manager, string) {
	t.Helper()
	api.groups = append(api.groups, domain.InventoryGroup{
		ID:        "g-seed",
		Name:      "Seeded",
		AssetKeys: keys,
		Records:   records,
		Version:   1,
	})
	m := NewManager(api, nil)
	require.NoError(t, m.Load(context.Background()))
	return m, "g-seed"
}

func TestManager_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.products = []domain.Product{{ID: "P1", Title: "Netflix 1 Month"}}
	m := NewManager(api, nil)
	require.NoError(t, m.Load(ctx))
	loadCalls := api.totalCalls()

	ref := m.NewGroup("G1", []string{"Email", "Password"})
	require.NoError(t, m.Open(ref))

	// Linking before the first save is refused without touching the network.
	err := m.LinkProduct(ctx, ref, "P1")
	require.ErrorIs(t, err, ErrSaveInventoryFirst)
	assert.Equal(t, "save inventory first", err.Error())
	assert.Equal(t, loadCalls, api.totalCalls())
	g, ok := m.Group(ref)
	require.True(t, ok)
	assert.Empty(t, g.LinkedProductID)

	require.NoError(t, m.CommitAndSave(ctx, ref))
	require.Len(t, api.created, 1)
	assert.Equal(t, domain.GroupPayload{
		Name:      "G1",
		Records:   []domain.Record{{"Email": "", "Password": ""}},
		AssetKeys: []string{"Email", "Password"},
	}, api.created[0])

	groups := m.Groups()
	require.Len(t, groups, 1)
	id := groups[0].ID
	require.NotEmpty(t, id)

	listCalls := api.callCount("ListGroups")
	require.NoError(t, m.LinkProduct(ctx, id, "P1"))
	assert.Equal(t, [][2]string{{id, "P1"}}, api.links)
	assert.Equal(t, listCalls, api.callCount("ListGroups"), "link must not re-fetch the list")

	g, ok = m.Group(id)
	require.True(t, ok)
	assert.Equal(t, "P1", g.LinkedProductID)
	assert.Equal(t, "Netflix 1 Month", g.LinkedProductTitle)
}

func TestManager_ChangeAssetKeys(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email", "Password"},
		domain.Record{"Email": "a@x.com", "Password": "p1"},
		domain.Record{"Email": "b@x.com", "Password": "p2"},
	)

	require.NoError(t, m.ChangeAssetKeys(ctx, ref, []string{"Email", "Username"}))

	require.Len(t, api.updated, 1)
	assert.Equal(t, []string{"Email", "Username"}, api.updated[0].AssetKeys)
	assert.Equal(t, []domain.Record{
		{"Email": "a@x.com", "Username": ""},
		{"Email": "b@x.com", "Username": ""},
	}, api.updated[0].Records)

	g, ok := m.Group(ref)
	require.True(t, ok)
	assert.Equal(t, []string{"Email", "Username"}, g.AssetKeys)
	for _, r := range g.Records {
		assert.True(t, r.Conforms(g.AssetKeys))
	}
}

func TestManager_ChangeAssetKeys_EmptySchema(t *testing.T) {
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})

	require.NoError(t, m.ChangeAssetKeys(context.Background(), ref, nil))

	g, _ := m.Group(ref)
	assert.Empty(t, g.AssetKeys)
	require.Len(t, g.Records, 1)
	assert.Empty(t, g.Records[0])
}

func TestManager_ChangeAssetKeys_UnsavedGroupIsCreated(t *testing.T) {
	api := newFakeAPI()
	m := NewManager(api, nil)
	ref := m.NewGroup("G1", nil)

	require.NoError(t, m.ChangeAssetKeys(context.Background(), ref, []string{"Login"}))

	require.Len(t, api.created, 1)
	assert.Equal(t, []domain.Record{{"Login": ""}}, api.created[0].Records)
	_, ok := m.Group(ref)
	assert.False(t, ok, "local ref is replaced by the assigned id")
	assert.Len(t, m.Groups(), 1)
}

func TestManager_WorkingCopyResyncsAfterSchemaChange(t *testing.T) {
	// A field edit sitting in the working copy is not part of the
	// schema-change save; afterwards the working copy follows the new keys.
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email", "Password"},
		domain.Record{"Email": "saved@x.com", "Password": "saved"},
	)
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.UpdateFieldValue(ref, 0, "Email", "edited@x.com"))

	require.NoError(t, m.ChangeAssetKeys(ctx, ref, []string{"Email", "Username"}))

	require.Len(t, api.updated, 1)
	assert.Equal(t, "saved@x.com", api.updated[0].Records[0]["Email"])

	working, err := m.WorkingCopy(ref)
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{"Email": "edited@x.com", "Username": ""}}, working)
}

func TestManager_SaveAfterSchemaChangeConforms(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email", "Password"},
		domain.Record{"Email": "a@x.com", "Password": "p1"},
		domain.Record{"Email": "b@x.com", "Password": "p2"},
	)
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.ChangeAssetKeys(ctx, ref, []string{"Email", "Username"}))
	require.NoError(t, m.UpdateFieldValue(ref, 1, "Username", "bee"))

	require.NoError(t, m.CommitAndSave(ctx, ref))

	require.Len(t, api.updated, 2)
	saved := api.updated[1]
	assert.Equal(t, []string{"Email", "Username"}, saved.AssetKeys)
	assert.Equal(t, []domain.Record{
		{"Email": "a@x.com", "Username": ""},
		{"Email": "b@x.com", "Username": "bee"},
	}, saved.Records)
	for _, r := range saved.Records {
		assert.True(t, r.Conforms(saved.AssetKeys), "record %v", r)
	}
}

func TestManager_RemoveDigitalAsset_KeepsLastRecord(t *testing.T) {
	m := NewManager(newFakeAPI(), nil)
	ref := m.NewGroup("G1", nil)
	require.NoError(t, m.Open(ref))

	err := m.RemoveDigitalAsset(ref, 0)

	assert.ErrorIs(t, err, ErrLastRecord)
	working, _ := m.WorkingCopy(ref)
	assert.Len(t, working, 1)

	notices := m.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
	assert.Equal(t, ErrLastRecord.Error(), notices[0].Message)
}

func TestManager_RemoveDigitalAsset_IndexBounds(t *testing.T) {
	m := NewManager(newFakeAPI(), nil)
	ref := m.NewGroup("G1", nil)
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.AddDigitalAsset(ref))

	assert.ErrorIs(t, m.RemoveDigitalAsset(ref, 2), ErrRecordIndex)
	assert.ErrorIs(t, m.RemoveDigitalAsset(ref, -1), ErrRecordIndex)
	assert.ErrorIs(t, m.UpdateFieldValue(ref, 5, "Email", "x"), ErrRecordIndex)

	notices := m.Notices()
	require.Len(t, notices, 3)
	for _, n := range notices {
		assert.Equal(t, NoticeError, n.Kind)
	}
}

func TestManager_AddThenRemoveRoundTrip(t *testing.T) {
	m := NewManager(newFakeAPI(), nil)
	ref := m.NewGroup("G1", []string{"Email", "Password"})
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.UpdateFieldValue(ref, 0, "Email", "a@x.com"))
	before, _ := m.WorkingCopy(ref)

	require.NoError(t, m.AddDigitalAsset(ref))
	working, _ := m.WorkingCopy(ref)
	require.Len(t, working, 2)
	assert.Equal(t, domain.Record{"Email": "", "Password": ""}, working[1])

	require.NoError(t, m.RemoveDigitalAsset(ref, 1))
	after, _ := m.WorkingCopy(ref)
	assert.Equal(t, before, after)
}

func TestManager_EditsStayLocalUntilCommit(t *testing.T) {
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
	require.NoError(t, m.Open(ref))

	require.NoError(t, m.UpdateFieldValue(ref, 0, "Email", "b"))
	require.NoError(t, m.AddDigitalAsset(ref))

	g, _ := m.Group(ref)
	assert.Equal(t, []domain.Record{{"Email": "a"}}, g.Records)
	assert.Zero(t, api.callCount("UpdateGroup"))
}

func TestManager_CommitAndSave_DoesNotChangeSchema(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email", "Password"}, domain.Record{"Email": "a", "Password": "b"})
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.UpdateFieldValue(ref, 0, "Pin", "1234"))

	require.NoError(t, m.CommitAndSave(ctx, ref))

	require.Len(t, api.updated, 1)
	assert.Equal(t, []string{"Email", "Password"}, api.updated[0].AssetKeys)
	g, _ := m.Group(ref)
	assert.Equal(t, []string{"Email", "Password"}, g.AssetKeys)
	assert.Equal(t, "1234", g.Records[0]["Pin"])
}

func TestManager_CommitAndSave_RefetchesList(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
	require.NoError(t, m.Open(ref))
	listCalls := api.callCount("ListGroups")

	require.NoError(t, m.CommitAndSave(ctx, ref))

	assert.Equal(t, listCalls+1, api.callCount("ListGroups"))
	g, _ := m.Group(ref)
	assert.Equal(t, 2, g.Version, "state comes from the re-fetched list")
}

func TestManager_CommitAndSave_FailureKeepsWorkingCopy(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
	require.NoError(t, m.Open(ref))
	require.NoError(t, m.UpdateFieldValue(ref, 0, "Email", "b"))
	api.errs["UpdateGroup"] = errors.New("connection refused")

	err := m.CommitAndSave(ctx, ref)

	require.Error(t, err)
	assert.Equal(t, 1, api.callCount("UpdateGroup"), "no automatic retry")
	working, werr := m.WorkingCopy(ref)
	require.NoError(t, werr)
	assert.Equal(t, []domain.Record{{"Email": "b"}}, working)

	notices := m.Notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, NoticeError, notices[len(notices)-1].Kind)
}

func TestManager_CommitAndSave_RequiresOpenGroup(t *testing.T) {
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})

	assert.ErrorIs(t, m.CommitAndSave(context.Background(), ref), ErrNotEditing)
	assert.Zero(t, api.callCount("UpdateGroup"))
}

func TestManager_LinkFailureLeavesStateUnchanged(t *testing.T) {
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
	api.errs["LinkProduct"] = errors.New("product already linked")

	err := m.LinkProduct(context.Background(), ref, "P9")

	require.Error(t, err)
	g, _ := m.Group(ref)
	assert.Empty(t, g.LinkedProductID)
}

func TestManager_UnlinkProduct(t *testing.T) {
	api := newFakeAPI()
	api.products = []domain.Product{{ID: "P1", Title: "Netflix"}}
	api.groups = []domain.InventoryGroup{{ID: "g-1", Name: "G", LinkedProductID: "P1"}}
	m := NewManager(api, nil)
	require.NoError(t, m.Load(context.Background()))

	g, _ := m.Group("g-1")
	assert.Equal(t, "Netflix", g.LinkedProductTitle, "missing titles are resolved on load")

	require.NoError(t, m.UnlinkProduct(context.Background(), "g-1"))

	g, _ = m.Group("g-1")
	assert.Empty(t, g.LinkedProductID)
	assert.Empty(t, g.LinkedProductTitle)
}

func TestManager_LinkResolvesTitleWithoutLoadedProducts(t *testing.T) {
	api := newFakeAPI()
	api.groups = []domain.InventoryGroup{{ID: "g-1", Name: "G"}}
	m := NewManager(api, nil)
	require.NoError(t, m.refresh(context.Background()))
	require.Empty(t, m.Products())

	api.products = []domain.Product{{ID: "P1", Title: "Netflix"}}
	require.NoError(t, m.LinkProduct(context.Background(), "g-1", "P1"))

	g, _ := m.Group("g-1")
	assert.Equal(t, "P1", g.LinkedProductID)
	assert.Equal(t, "Netflix", g.LinkedProductTitle)
	assert.Equal(t, 1, api.callCount("GetProduct"))
}

func TestManager_DeleteGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("unsaved group is removed locally", func(t *testing.T) {
		api := newFakeAPI()
		m := NewManager(api, nil)
		ref := m.NewGroup("G1", nil)

		require.NoError(t, m.DeleteGroup(ctx, ref))

		assert.Empty(t, m.Groups())
		assert.Zero(t, api.totalCalls())
	})

	t.Run("persisted group is deleted remotely", func(t *testing.T) {
		api := newFakeAPI()
		m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})

		require.NoError(t, m.DeleteGroup(ctx, ref))

		assert.Equal(t, 1, api.callCount("DeleteGroup"))
		assert.Empty(t, m.Groups())
	})

	t.Run("failure keeps the list", func(t *testing.T) {
		api := newFakeAPI()
		m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
		api.errs["DeleteGroup"] = errors.New("boom")

		require.Error(t, m.DeleteGroup(ctx, ref))

		assert.Len(t, m.Groups(), 1)
	})
}

func TestManager_ViewIsPureProjection(t *testing.T) {
	api := newFakeAPI()
	api.groups = []domain.InventoryGroup{
		{ID: "1", Name: "Netflix", LinkedProductID: "p1", LinkedProductTitle: "Streaming"},
		{ID: "2", Name: "Spotify"},
	}
	m := NewManager(api, nil)
	require.NoError(t, m.Load(context.Background()))

	first := m.View("net", domain.LinkFilterLinked)
	second := m.View("net", domain.LinkFilterLinked)

	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	first[0].Name = "mutated"
	assert.Equal(t, "Netflix", m.Groups()[0].Name)
}

func TestManager_InFlightRefusesDuplicate(t *testing.T) {
	api := newFakeAPI()
	m, ref := seedSaved(t, api, []string{"Email"}, domain.Record{"Email": "a"})
	api.linkGate = make(chan struct{})

	errc := make(chan error, 1)
	go func() { errc <- m.LinkProduct(context.Background(), ref, "P1") }()

	require.Eventually(t, func() bool { return m.InFlight(ActionLink, ref) }, time.Second, time.Millisecond)
	assert.ErrorIs(t, m.LinkProduct(context.Background(), ref, "P1"), ErrInFlight)

	close(api.linkGate)
	require.NoError(t, <-errc)
	assert.False(t, m.InFlight(ActionLink, ref))
}

func TestManager_NoticesExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := NewManager(newFakeAPI(), nil, WithClock(clock))
	ref := m.NewGroup("G1", nil)

	_ = m.LinkProduct(context.Background(), ref, "P1")
	require.Len(t, m.Notices(), 1)

	now = now.Add(2 * time.Second)
	assert.Len(t, m.Notices(), 1, "errors stay for three seconds")

	now = now.Add(time.Second)
	assert.Empty(t, m.Notices())
}

func TestManager_VersionCheck(t *testing.T) {
	api := newFakeAPI()
	api.groups = []domain.InventoryGroup{{ID: "g-1", Name: "G", AssetKeys: []string{"Email"}, Records: []domain.Record{{"Email": ""}}, Version: 4}}
	m := NewManager(api, nil, WithVersionCheck())
	require.NoError(t, m.Load(context.Background()))
	require.NoError(t, m.Open("g-1"))

	require.NoError(t, m.CommitAndSave(context.Background(), "g-1"))

	require.Len(t, api.updated, 1)
	assert.Equal(t, 4, api.updated[0].Version)
}
