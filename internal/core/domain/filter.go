package domain

import (
	"fmt"
	"strings"
)

type LinkFilter string

const (
	LinkFilterAll      LinkFilter = "all"
	LinkFilterLinked   LinkFilter = "linked"
	LinkFilterUnlinked LinkFilter = "unlinked"
)

// ParseLinkFilter accepts all, linked or unlinked; an empty string means all.
func ParseLinkFilter(s string) (LinkFilter, error) {
	switch f := LinkFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "", LinkFilterAll:
		return LinkFilterAll, nil
	case LinkFilterLinked, LinkFilterUnlinked:
		return f, nil
	default:
		return "", fmt.Errorf("unknown link filter %q", s)
	}
}

func (f LinkFilter) matches(g InventoryGroup) bool {
	switch f {
	case LinkFilterLinked:
		return g.IsLinked()
	case LinkFilterUnlinked:
		return !g.IsLinked()
	default:
		return true
	}
}

// FilterGroups returns the indices of groups whose name or linked product
// title contains term (case-insensitive) and whose link status matches f.
func FilterGroups(groups []InventoryGroup, term string, f LinkFilter) []int {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]int, 0, len(groups))
	for i, g := range groups {
		if !f.matches(g) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(g.Name), term) &&
			!strings.Contains(strings.ToLower(g.LinkedProductTitle), term) {
			continue
		}
		out = append(out, i)
	}
	return out
}
