// Package tracker derives the set of users that have contributed to a
// replicated document from the per-origin attribution ledger embedded in its
// state.
package tracker

import (
	"sort"

	"github.com/jorilallo/outline/crdt"
)

// Collaborators returns the union of the previously known collaborator ids
// and the user ids resolvable from the state's origin ledger, sorted. The
// result never shrinks relative to existing, and it is independent of the
// order in which origins were merged into the state. Origins with no
// resolvable user contribute nothing.
func Collaborators(state *crdt.Document, existing []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	for _, userID := range state.Users() {
		if userID == "" {
			continue
		}
		seen[userID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
