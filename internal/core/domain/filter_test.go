package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGroups() []InventoryGroup {
	return []InventoryGroup{
		{ID: "1", Name: "Netflix Premium", LinkedProductID: "p1", LinkedProductTitle: "Netflix 1 Month"},
		{ID: "2", Name: "Spotify Family"},
		{ID: "3", Name: "Disney Bundle", LinkedProductID: "p3", LinkedProductTitle: "Streaming Pack"},
		{LocalRef: "local-4", Name: "new inventory"},
	}
}

func TestFilterGroups(t *testing.T) {
	groups := sampleGroups()

	tests := []struct {
		name   string
		term   string
		filter LinkFilter
		want   []int
	}{
		{"all without term", "", LinkFilterAll, []int{0, 1, 2, 3}},
		{"linked only", "", LinkFilterLinked, []int{0, 2}},
		{"unlinked only", "", LinkFilterUnlinked, []int{1, 3}},
		{"name match is case-insensitive", "SPOTIFY", LinkFilterAll, []int{1}},
		{"matches product title", "streaming", LinkFilterAll, []int{2}},
		{"term and filter combine", "netflix", LinkFilterUnlinked, []int{}},
		{"no match", "hulu", LinkFilterAll, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterGroups(groups, tt.term, tt.filter))
		})
	}
}

func TestFilterGroups_Idempotent(t *testing.T) {
	groups := sampleGroups()
	before := make([]InventoryGroup, len(groups))
	for i, g := range groups {
		before[i] = g.Clone()
	}

	first := FilterGroups(groups, "n", LinkFilterLinked)
	second := FilterGroups(groups, "n", LinkFilterLinked)

	assert.Equal(t, first, second)
	assert.Equal(t, before, groups, "filtering must not touch the canonical list")
}

func TestParseLinkFilter(t *testing.T) {
	f, err := ParseLinkFilter("")
	require.NoError(t, err)
	assert.Equal(t, LinkFilterAll, f)

	f, err = ParseLinkFilter(" Linked ")
	require.NoError(t, err)
	assert.Equal(t, LinkFilterLinked, f)

	_, err = ParseLinkFilter("orphaned")
	assert.Error(t, err)
}
