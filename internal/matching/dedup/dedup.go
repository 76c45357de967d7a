// Package dedup merges catalog and directory results. Catalog rows always win.
package dedup

import (
	"strings"

	"golang.org/x/text/cases"

	"advising-workers/internal/models"
)

// DefaultLimit bounds a merged page.
const DefaultLimit = 80

// NormalizeName folds case and trims surrounding space so "Alpha University"
// and " alpha UNIVERSITY" compare equal.
func NormalizeName(name string) string {
	// A Caser holds state; build one per call.
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// Merge returns local first, then every external entry whose name does not
// match a local one, truncated to limit (DefaultLimit when limit <= 0).
// Entries repeating an earlier ID are dropped.
func Merge(local, external []models.University, limit int) []models.University {
	if limit <= 0 {
		limit = DefaultLimit
	}

	localNames := make(map[string]struct{}, len(local))
	for _, u := range local {
		localNames[NormalizeName(u.Name)] = struct{}{}
	}

	out := make([]models.University, 0, min(limit, len(local)+len(external)))
	seenIDs := make(map[string]struct{}, len(local)+len(external))
	add := func(u models.University) bool {
		if _, dup := seenIDs[u.ID]; dup {
			return len(out) < limit
		}
		seenIDs[u.ID] = struct{}{}
		out = append(out, u)
		return len(out) < limit
	}

	for _, u := range local {
		if !add(u) {
			return out
		}
	}
	for _, u := range external {
		if _, shadowed := localNames[NormalizeName(u.Name)]; shadowed {
			continue
		}
		if !add(u) {
			return out
		}
	}
	return out
}
