package tree

import (
	"bytes"
	"context"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/cursor"
	"github.com/ProllyDB/prolly/pkg/diff"
	"github.com/ProllyDB/prolly/pkg/node"
)

// Mutate applies an ordered batch of updates and moves the root to the
// rebuilt tree. The structural diff is streamed through emit (which
// may be nil) in chunks ordered ascending by tuple. New buckets are
// written to the store as they are produced; the root slot is only
// swapped after the whole rebuild succeeds, so a failed or abandoned
// call leaves the tree untouched.
func (t *Tree) Mutate(ctx context.Context, store blockstore.Store, updates []Update, emit func(diff.Diff) error) error {
	if err := validateUpdates(updates); err != nil {
		return err
	}
	if len(updates) == 0 {
		return nil
	}

	queue := make([]update, 0, len(updates))
	for _, u := range updates {
		queue = append(queue, update{level: 0, node: u.Node, remove: u.Remove})
	}

	m := &mutation{
		store:       store,
		cur:         cursor.New(store, t.root),
		prefix:      t.root.Prefix(),
		updates:     queue,
		emit:        emit,
		visited:     make(map[uint32]bool),
		visitedTail: make(map[uint32]bool),
		visitedHead: make(map[uint32]bool),
		skipped:     make(map[uint32]bool),
		emittedOn:   make(map[uint32]int),
	}

	newRoot, err := m.run(ctx)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// Put inserts or replaces a single entry.
func (t *Tree) Put(ctx context.Context, store blockstore.Store, n node.Node) error {
	return t.Mutate(ctx, store, []Update{Add(n)}, nil)
}

// Delete removes a single tuple if present.
func (t *Tree) Delete(ctx context.Context, store blockstore.Store, tup node.Tuple) error {
	return t.Mutate(ctx, store, []Update{Rm(tup)}, nil)
}

// mutation is the state of one bottom-up rebuild: the update queue
// ordered by (level, tuple), a cursor over the old tree, leftovers
// carried between sibling rebuilds, and the per-level bookkeeping the
// termination rule needs.
type mutation struct {
	store  blockstore.Store
	cur    *cursor.Cursor
	prefix bucket.Prefix

	updates       []update
	leftovers     []node.Node
	leftoverLevel uint32

	// visited latches the first bucket seen per level; visitedTail is
	// set from that first bucket only. skipped marks levels where a
	// fast-forward jumped over untouched sibling buckets: such a level
	// cannot be the new root even if only one bucket was emitted on it.
	visited     map[uint32]bool
	visitedTail map[uint32]bool
	visitedHead map[uint32]bool
	skipped     map[uint32]bool
	emittedOn   map[uint32]int
	lastEmitted *bucket.Bucket

	pendingNodes   []diff.NodeDiff
	pendingBuckets []diff.BucketDiff
	emit           func(diff.Diff) error
}

func (m *mutation) prefixAt(level uint32) bucket.Prefix {
	p := m.prefix
	p.Level = level
	return p
}

// run drives rebuild rounds until a single bucket covers a whole
// level whose tail and head were both visited. Each round consumes
// the queue prefix at the lowest pending level, so every round pushes
// work only upward and the loop terminates without an escape counter.
func (m *mutation) run(ctx context.Context) (*bucket.Bucket, error) {
	for len(m.updates) > 0 || len(m.leftovers) > 0 {
		level := m.leftoverLevel
		if len(m.leftovers) == 0 {
			level = m.updates[0].level
		}

		updatee, synthetic, isHead, err := m.target(ctx, level)
		if err != nil {
			return nil, err
		}

		batch := m.takeBatch(level, updatee, isHead)

		emitted, carry, nodeDiffs, err := m.rebuild(updatee, m.leftovers, batch, isHead)
		if err != nil {
			return nil, err
		}
		hadLeftovers := len(m.leftovers) > 0
		m.leftovers = carry
		m.leftoverLevel = level
		m.emittedOn[level] += len(emitted)
		if len(emitted) > 0 {
			m.lastEmitted = emitted[len(emitted)-1]
		}

		changed := hadLeftovers || len(nodeDiffs) > 0 || len(carry) > 0 ||
			len(emitted) != 1 || !bytes.Equal(emitted[0].Digest(), updatee.Digest())

		if level == 0 {
			m.pendingNodes = append(m.pendingNodes, nodeDiffs...)
		}
		if changed {
			if !synthetic {
				m.pendingBuckets = append(m.pendingBuckets, diff.BucketDiff{Before: updatee})
			}
			for _, b := range emitted {
				m.pendingBuckets = append(m.pendingBuckets, diff.BucketDiff{After: b})
			}
		}

		for _, b := range emitted {
			if err := bucket.Save(ctx, m.store, b); err != nil {
				return nil, err
			}
		}

		m.pushParentUpdates(level, updatee, emitted, synthetic, changed)
		sortUpdates(m.updates)

		if len(emitted) > 0 {
			if err := m.yield(isHead); err != nil {
				return nil, err
			}
		}

		if m.emittedOn[level] == 1 && len(m.leftovers) == 0 &&
			m.visitedTail[level] && m.visitedHead[level] && !m.skipped[level] {
			root, err := m.collapse(ctx, m.lastEmitted)
			if err != nil {
				return nil, err
			}
			if err := m.finish(root); err != nil {
				return nil, err
			}
			return root, nil
		}
	}
	return nil, ErrNoNewRoot
}

// collapse descends through single-entry roots. A root with exactly
// one entry means the level below has exactly one bucket, so that
// bucket is the canonical root; removals can otherwise leave the tree
// one level taller than a fresh build of the same content.
func (m *mutation) collapse(ctx context.Context, root *bucket.Bucket) (*bucket.Bucket, error) {
	for root.Level() > 0 && root.Len() == 1 {
		child, err := bucket.Load(ctx, m.store, root.EntryAt(0).Message, root.Prefix().Child())
		if err != nil {
			return nil, err
		}
		m.pendingBuckets = append(m.pendingBuckets, diff.BucketDiff{Before: root})
		root = child
	}
	return root, nil
}

// target positions the cursor and returns the bucket the next round
// rebuilds. Levels above the old root get a synthetic empty bucket:
// the tree is growing.
func (m *mutation) target(ctx context.Context, level uint32) (updatee *bucket.Bucket, synthetic, isHead bool, err error) {
	if level > m.cur.RootLevel() || m.cur.Done() {
		b, err := bucket.NewEmpty(m.prefixAt(level))
		if err != nil {
			return nil, false, false, err
		}
		if !m.visited[level] {
			m.visited[level] = true
			m.visitedTail[level] = true
		}
		m.visitedHead[level] = true
		return b, true, true, nil
	}

	if len(m.leftovers) == 0 {
		// On revisits, probe the immediate sibling so a fast-forward
		// that jumps past untouched buckets taints the level for the
		// new-root check.
		var probe *cursor.Cursor
		if m.visited[level] {
			probe = m.cur.Clone()
			if err := probe.NextBucketAtLevel(ctx, level); err != nil {
				return nil, false, false, err
			}
		}
		if err = m.cur.NextTuple(ctx, m.updates[0].node.Tuple(), level); err != nil {
			return nil, false, false, err
		}
		if probe != nil && (probe.Done() ||
			!bytes.Equal(probe.CurrentBucket().Digest(), m.cur.CurrentBucket().Digest())) {
			m.skipped[level] = true
		}
	} else {
		if err = m.cur.NextBucketAtLevel(ctx, level); err != nil {
			return nil, false, false, err
		}
	}

	updatee = m.cur.CurrentBucket()
	isHead = m.cur.IsAtHead()
	if !m.visited[level] {
		m.visited[level] = true
		m.visitedTail[level] = m.cur.IsAtTail()
	}
	if isHead {
		m.visitedHead[level] = true
	}
	return updatee, false, isHead, nil
}

// takeBatch slices off the queue prefix belonging to the updatee:
// same level, and tuple within the bucket's boundary unless the
// updatee is the head of its level.
func (m *mutation) takeBatch(level uint32, updatee *bucket.Bucket, isHead bool) []update {
	boundary := updatee.Boundary()
	n := 0
	for n < len(m.updates) {
		u := m.updates[n]
		if u.level != level {
			break
		}
		if !isHead && boundary != nil &&
			node.CompareTuples(u.node.Tuple(), boundary.Tuple()) > 0 {
			break
		}
		n++
	}
	batch := m.updates[:n:n]
	m.updates = m.updates[n:]
	return batch
}

// rebuild merges leftovers, the updatee's entries and the update
// batch into one ordered stream and rechunks it through the boundary
// predicate. Entries past the final boundary are carried into the
// next sibling's rebuild; the head of a level flushes them into a
// final bucket instead (empty only at level 0).
func (m *mutation) rebuild(updatee *bucket.Bucket, leftovers []node.Node, batch []update, isHead bool) ([]*bucket.Bucket, []node.Node, []diff.NodeDiff, error) {
	base := leftovers
	if updatee.Len() > 0 {
		base = append(append([]node.Node(nil), leftovers...), updatee.Entries()...)
	}
	merged, nodeDiffs := mergeUpdates(base, batch)

	level := updatee.Level()
	isBoundary := node.NewBoundary(m.prefix.Average, level)

	var emitted []*bucket.Bucket
	var acc []node.Node
	for _, n := range merged {
		acc = append(acc, n)
		if isBoundary(n) {
			b, err := bucket.New(m.prefixAt(level), acc)
			if err != nil {
				return nil, nil, nil, err
			}
			emitted = append(emitted, b)
			acc = nil
		}
	}

	if isHead && (len(acc) > 0 || len(emitted) == 0) {
		// An empty bucket is only legal as the level-0 root.
		if len(acc) > 0 || level == 0 {
			b, err := bucket.New(m.prefixAt(level), acc)
			if err != nil {
				return nil, nil, nil, err
			}
			emitted = append(emitted, b)
			acc = nil
		}
	}

	return emitted, acc, nodeDiffs, nil
}

// pushParentUpdates queues the level+1 consequences of a round: one
// Add per emitted bucket, and the removal of the updatee's old parent
// entry when the rebuild changed it and no emission re-took the same
// boundary tuple.
func (m *mutation) pushParentUpdates(level uint32, updatee *bucket.Bucket, emitted []*bucket.Bucket, synthetic, changed bool) {
	for _, b := range emitted {
		if pe := b.ParentEntry(); pe != nil {
			m.updates = append(m.updates, update{level: level + 1, node: *pe})
		}
	}
	if synthetic || !changed {
		return
	}
	pe := updatee.ParentEntry()
	if pe == nil {
		return
	}
	for _, b := range emitted {
		if bd := b.Boundary(); bd != nil && node.CompareTuples(bd.Tuple(), pe.Tuple()) == 0 {
			return
		}
	}
	m.updates = append(m.updates, update{level: level + 1, node: node.Node{
		Timestamp: pe.Timestamp,
		Hash:      pe.Hash,
	}, remove: true})
}

// yield flushes the accumulated diff chunk. Node diffs are split so
// the yielded ones are covered by the buckets emitted so far; at the
// head of a level everything flushes.
func (m *mutation) yield(isHead bool) error {
	if m.emit == nil {
		m.pendingNodes = nil
		m.pendingBuckets = nil
		return nil
	}

	nodes := m.pendingNodes
	var rest []diff.NodeDiff
	if !isHead && m.lastEmitted != nil {
		if bd := m.lastEmitted.Boundary(); bd != nil {
			cut := len(nodes)
			for i, nd := range nodes {
				if node.CompareTuples(diffTuple(nd), bd.Tuple()) > 0 {
					cut = i
					break
				}
			}
			nodes, rest = nodes[:cut], nodes[cut:]
		}
	}

	chunk := diff.Diff{Nodes: nodes, Buckets: m.pendingBuckets}
	m.pendingNodes = rest
	m.pendingBuckets = nil
	if chunk.Empty() {
		return nil
	}
	return m.emit(chunk)
}

// finish emits the removals implied by tree shrinkage (old ancestors
// above the new root) and flushes any remaining diff.
func (m *mutation) finish(root *bucket.Bucket) error {
	for _, b := range m.cur.Buckets() {
		if b.Level() > root.Level() {
			m.pendingBuckets = append(m.pendingBuckets, diff.BucketDiff{Before: b})
		}
	}
	return m.yield(true)
}

func diffTuple(nd diff.NodeDiff) node.Tuple {
	if nd.Before != nil {
		return nd.Before.Tuple()
	}
	return nd.After.Tuple()
}

// mergeUpdates splices an ordered update batch into an ordered entry
// run, reconciling per tuple: Add inserts or replaces (replacement
// with an identical message is a no-op), Rm drops the entry if
// present. Returned diffs are ascending by tuple.
func mergeUpdates(base []node.Node, batch []update) ([]node.Node, []diff.NodeDiff) {
	merged := make([]node.Node, 0, len(base)+len(batch))
	var diffs []diff.NodeDiff
	i := 0

	for _, u := range batch {
		ut := u.node.Tuple()
		for i < len(base) && node.CompareTuples(base[i].Tuple(), ut) < 0 {
			merged = append(merged, base[i])
			i++
		}

		// Find the existing entry for this tuple: either the next base
		// entry, or the last merged entry when a prior update in this
		// batch already touched the same tuple.
		var existing *node.Node
		fromMerged := false
		if len(merged) > 0 && node.CompareTuples(merged[len(merged)-1].Tuple(), ut) == 0 {
			existing = &merged[len(merged)-1]
			fromMerged = true
		} else if i < len(base) && node.CompareTuples(base[i].Tuple(), ut) == 0 {
			existing = &base[i]
			i++
		}

		switch {
		case u.remove && existing != nil:
			old := *existing
			diffs = append(diffs, diff.NodeDiff{Before: &old})
			if fromMerged {
				merged = merged[:len(merged)-1]
			}
		case u.remove:
			// Removing an absent tuple is a no-op.
		case existing != nil && bytes.Equal(existing.Message, u.node.Message):
			if !fromMerged {
				merged = append(merged, *existing)
			}
		case existing != nil:
			old := *existing
			added := u.node
			diffs = append(diffs, diff.NodeDiff{Before: &old, After: &added})
			if fromMerged {
				merged[len(merged)-1] = u.node
			} else {
				merged = append(merged, u.node)
			}
		default:
			added := u.node
			diffs = append(diffs, diff.NodeDiff{After: &added})
			merged = append(merged, u.node)
		}
	}

	merged = append(merged, base[i:]...)
	return merged, diffs
}
