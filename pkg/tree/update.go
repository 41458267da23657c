package tree

import (
	"fmt"
	"sort"

	"github.com/ProllyDB/prolly/pkg/node"
)

// Update is one requested change: an insert-or-replace of Node by
// tuple, or the removal of Node's tuple when Remove is set (Message is
// ignored for removals).
type Update struct {
	Node   node.Node
	Remove bool
}

// Add builds an insert-or-replace update.
func Add(n node.Node) Update {
	return Update{Node: n}
}

// Rm builds a removal update for a tuple.
func Rm(t node.Tuple) Update {
	return Update{Node: node.Node{Timestamp: t.Timestamp, Hash: t.Hash}, Remove: true}
}

// update is the internal, level-tagged form updates take inside the
// mutation loop.
type update struct {
	level  uint32
	node   node.Node
	remove bool
}

// validateUpdates enforces the caller contract: strictly ascending
// tuples, no duplicates, hashes long enough for the boundary
// predicate.
func validateUpdates(updates []Update) error {
	for i, u := range updates {
		if err := u.Node.Validate(); err != nil {
			return fmt.Errorf("%w: update %d: %v", ErrBadInput, i, err)
		}
		if i > 0 && node.CompareNodes(updates[i-1].Node, u.Node) >= 0 {
			return fmt.Errorf("%w: update %d", ErrBadInput, i)
		}
	}
	return nil
}

// sortUpdates orders the queue by level first, then tuple. The sort is
// stable so that updates pushed earlier keep priority between equal
// tuples, matching the order reconciliation expects.
func sortUpdates(updates []update) {
	sort.SliceStable(updates, func(i, j int) bool {
		if updates[i].level != updates[j].level {
			return updates[i].level < updates[j].level
		}
		return node.CompareTuples(updates[i].node.Tuple(), updates[j].node.Tuple()) < 0
	})
}
