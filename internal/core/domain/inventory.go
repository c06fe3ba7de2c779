package domain

import (
	"strings"
	"time"
)

// DefaultAssetKeys is the schema a new group starts with when none is given.
var DefaultAssetKeys = []string{"Email", "Password"}

// Record is one digital asset: a set of credential fields keyed by asset key.
type Record map[string]string

// NewRecord returns a record holding every key with an empty value.
func NewRecord(keys []string) Record {
	r := make(Record, len(keys))
	for _, k := range keys {
		r[k] = ""
	}
	return r
}

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Conforms reports whether the record's key set is exactly the normalized
// keys.
func (r Record) Conforms(keys []string) bool {
	keys = NormalizeAssetKeys(keys)
	if len(r) != len(keys) {
		return false
	}
	for _, k := range keys {
		if _, ok := r[k]; !ok {
			return false
		}
	}
	return true
}

type InventoryGroup struct {
	ID                 string    `json:"id,omitempty"`
	SellerID           string    `json:"sellerId,omitempty"`
	Name               string    `json:"inventoryGroup"`
	AssetKeys          []string  `json:"assetKeys"`
	Records            []Record  `json:"digitalAssets"`
	LinkedProductID    string    `json:"productId,omitempty"`
	LinkedProductTitle string    `json:"productTitle,omitempty"`
	Version            int       `json:"version"`
	CreatedAt          time.Time `json:"createdAt,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`

	// LocalRef addresses a group that has not been persisted yet.
	LocalRef string `json:"-"`
}

// NewInventoryGroup builds an unsaved group with one empty record.
// A nil keys slice selects DefaultAssetKeys.
func NewInventoryGroup(name string, keys []string) InventoryGroup {
	if keys == nil {
		keys = DefaultAssetKeys
	}
	keys = NormalizeAssetKeys(keys)
	return InventoryGroup{
		Name:      name,
		AssetKeys: keys,
		Records:   []Record{NewRecord(keys)},
	}
}

// Ref is the identifier used to address the group locally: its ID once
// persisted, its LocalRef before that.
func (g InventoryGroup) Ref() string {
	if g.ID != "" {
		return g.ID
	}
	return g.LocalRef
}

func (g InventoryGroup) IsPersisted() bool { return g.ID != "" }

func (g InventoryGroup) IsLinked() bool { return g.LinkedProductID != "" }

// Clone returns a deep copy; callers may mutate it freely.
func (g InventoryGroup) Clone() InventoryGroup {
	out := g
	out.AssetKeys = append([]string(nil), g.AssetKeys...)
	out.Records = CloneRecords(g.Records)
	return out
}

// Payload is the upsert body for this group.
func (g InventoryGroup) Payload() GroupPayload {
	return GroupPayload{
		Name:      g.Name,
		Records:   CloneRecords(g.Records),
		AssetKeys: append([]string(nil), g.AssetKeys...),
		ProductID: g.LinkedProductID,
	}
}

func CloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// NormalizeAssetKeys trims keys and drops blanks and repeats, keeping the
// first occurrence's position.
func NormalizeAssetKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ReconcileRecords rebuilds every record against keys: retained keys keep
// their value, new keys start empty, keys outside the schema are dropped.
// The input records are not modified.
func ReconcileRecords(records []Record, keys []string) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		rebuilt := make(Record, len(keys))
		for _, k := range keys {
			rebuilt[k] = r[k]
		}
		out[i] = rebuilt
	}
	return out
}
