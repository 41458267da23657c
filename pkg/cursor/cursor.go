// Package cursor implements a stateful multi-level position over a
// tree: a stack of buckets from the root down to the current level,
// with an index into the topmost bucket. Sideways and vertical moves
// load child buckets lazily from the block store.
package cursor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/node"
)

var (
	// ErrCursorLocked is returned when a mutating operation overlaps
	// another mutating operation on the same cursor.
	ErrCursorLocked = errors.New("cursor is locked")
	// ErrInvalidMove is returned for a move to the current level or
	// outside the root..0 range.
	ErrInvalidMove = errors.New("invalid cursor move")
	// ErrMalformedTree is returned when traversal hits a structural
	// violation, e.g. an internal bucket with no entries.
	ErrMalformedTree = errors.New("malformed tree")
	// ErrNoCurrentEntry is returned by Current on an empty bucket.
	ErrNoCurrentEntry = errors.New("no current entry")
)

// guide picks an index when the cursor enters a bucket.
type guide func(entries []node.Node) int

// lowestIndex targets the leftmost entry.
func lowestIndex(entries []node.Node) int {
	if len(entries) == 0 {
		return -1
	}
	return 0
}

// byTuple targets the first entry whose tuple is >= t, or the last
// entry if none is.
func byTuple(t node.Tuple) guide {
	return func(entries []node.Node) int {
		for i := range entries {
			if node.CompareTuples(entries[i].Tuple(), t) >= 0 {
				return i
			}
		}
		return len(entries) - 1
	}
}

// state is the cursor position. Mutating operations work on a copy
// and commit it back only on success, so an abandoned or failed move
// never leaves the cursor half-way.
type state struct {
	// buckets is the path from the root (index 0) down to the current
	// bucket (last index).
	buckets []*bucket.Bucket
	// index into the current bucket's entries; -1 iff it is empty.
	index int
	done  bool
}

func (s *state) clone() state {
	return state{
		buckets: append([]*bucket.Bucket(nil), s.buckets...),
		index:   s.index,
		done:    s.done,
	}
}

func (s *state) top() *bucket.Bucket {
	return s.buckets[len(s.buckets)-1]
}

func (s *state) level() uint32 {
	return s.top().Level()
}

func (s *state) rootLevel() uint32 {
	return s.buckets[0].Level()
}

func (s *state) current() (node.Node, error) {
	if s.index < 0 || s.index >= s.top().Len() {
		return node.Node{}, ErrNoCurrentEntry
	}
	return s.top().EntryAt(s.index), nil
}

// Cursor is a positioned traversal over one tree. A cursor is safe
// for concurrent readers; overlapping mutating calls fail with
// ErrCursorLocked rather than block.
type Cursor struct {
	store  blockstore.Store
	mu     sync.Mutex
	locked atomic.Bool
	state  state
}

// New creates a cursor positioned at the first entry of the root
// bucket (index -1 if the root is empty).
func New(store blockstore.Store, root *bucket.Bucket) *Cursor {
	return &Cursor{
		store: store,
		state: state{
			buckets: []*bucket.Bucket{root},
			index:   lowestIndex(root.Entries()),
		},
	}
}

// Level returns the level of the current bucket.
func (c *Cursor) Level() uint32 { return c.state.level() }

// RootLevel returns the level of the root bucket.
func (c *Cursor) RootLevel() uint32 { return c.state.rootLevel() }

// Index returns the current index; -1 iff the current bucket is empty.
func (c *Cursor) Index() int { return c.state.index }

// Current returns the entry under the cursor.
func (c *Cursor) Current() (node.Node, error) { return c.state.current() }

// Buckets returns a snapshot copy of the bucket stack, root first.
func (c *Cursor) Buckets() []*bucket.Bucket {
	return append([]*bucket.Bucket(nil), c.state.buckets...)
}

// CurrentBucket returns the topmost bucket of the stack.
func (c *Cursor) CurrentBucket() *bucket.Bucket { return c.state.top() }

// Locked reports whether a mutating operation is in flight.
func (c *Cursor) Locked() bool { return c.locked.Load() }

// Done reports whether the cursor has moved past the end of the tree.
// Once done, mutating operations are no-ops.
func (c *Cursor) Done() bool { return c.state.done }

// Clone returns an independent cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	return &Cursor{
		store: c.store,
		state: c.state.clone(),
	}
}

// IsAtTail reports whether the path from the root is composed of
// first-entry links only.
func (c *Cursor) IsAtTail() bool {
	for i := 0; i < len(c.state.buckets)-1; i++ {
		parent, child := c.state.buckets[i], c.state.buckets[i+1]
		if parent.Len() == 0 || !bytes.Equal(parent.EntryAt(0).Message, child.Digest()) {
			return false
		}
	}
	return true
}

// IsAtHead reports whether the path from the root is composed of
// last-entry links only.
func (c *Cursor) IsAtHead() bool {
	for i := 0; i < len(c.state.buckets)-1; i++ {
		parent, child := c.state.buckets[i], c.state.buckets[i+1]
		if parent.Len() == 0 || !bytes.Equal(parent.EntryAt(parent.Len()-1).Message, child.Digest()) {
			return false
		}
	}
	return true
}

// withLock runs fn over a snapshot of the cursor state and commits the
// snapshot atomically on success. Overlapping mutating calls fail with
// ErrCursorLocked; a done cursor no-ops.
func (c *Cursor) withLock(fn func(*state) error) error {
	if !c.mu.TryLock() {
		return ErrCursorLocked
	}
	defer c.mu.Unlock()
	c.locked.Store(true)
	defer c.locked.Store(false)

	if c.state.done {
		return nil
	}
	snap := c.state.clone()
	if err := fn(&snap); err != nil {
		return err
	}
	c.state = snap
	return nil
}

// Next advances the cursor one tuple at its current level.
func (c *Cursor) Next(ctx context.Context) error {
	return c.withLock(func(s *state) error {
		return s.next(ctx, c.store, s.level())
	})
}

// NextAtLevel advances the cursor one tuple at the given level.
func (c *Cursor) NextAtLevel(ctx context.Context, level uint32) error {
	return c.withLock(func(s *state) error {
		if level > s.rootLevel() {
			s.done = true
			return nil
		}
		return s.next(ctx, c.store, level)
	})
}

// NextBucket advances to the first entry of the next bucket at the
// current level.
func (c *Cursor) NextBucket(ctx context.Context) error {
	return c.withLock(func(s *state) error {
		return s.nextBucket(ctx, c.store, s.level())
	})
}

// NextBucketAtLevel advances to the first entry of the next bucket at
// the given level.
func (c *Cursor) NextBucketAtLevel(ctx context.Context, level uint32) error {
	return c.withLock(func(s *state) error {
		if level > s.rootLevel() {
			s.done = true
			return nil
		}
		return s.nextBucket(ctx, c.store, level)
	})
}

// NextTuple fast-forwards at the given level until the current tuple
// is >= t. The cursor never moves backwards.
func (c *Cursor) NextTuple(ctx context.Context, t node.Tuple, level uint32) error {
	return c.withLock(func(s *state) error {
		if level > s.rootLevel() {
			s.done = true
			return nil
		}
		return s.nextTuple(ctx, c.store, t, level)
	})
}

// JumpTo resets the stack to the root and descends to the given level
// aimed at t.
func (c *Cursor) JumpTo(ctx context.Context, t node.Tuple, level uint32) error {
	return c.withLock(func(s *state) error {
		if level > s.rootLevel() {
			s.done = true
			return nil
		}
		return s.jumpTo(ctx, c.store, t, level)
	})
}

// moveToLevel walks the stack vertically to target, loading child
// buckets on descent. g picks the index in each bucket entered; nil
// selects the default: lowest index descending, current tuple
// ascending.
func (s *state) moveToLevel(ctx context.Context, store blockstore.Store, target uint32, g guide) error {
	if target == s.level() {
		return fmt.Errorf("%w: already at level %d", ErrInvalidMove, target)
	}
	if target > s.rootLevel() {
		return fmt.Errorf("%w: level %d above root %d", ErrInvalidMove, target, s.rootLevel())
	}
	if g == nil {
		if target < s.level() {
			g = lowestIndex
		} else {
			cur, err := s.current()
			if err != nil {
				return fmt.Errorf("%w: cannot ascend from empty bucket", ErrMalformedTree)
			}
			g = byTuple(cur.Tuple())
		}
	}
	for s.level() != target {
		if target > s.level() {
			s.buckets = s.buckets[:len(s.buckets)-1]
			s.index = g(s.top().Entries())
			continue
		}
		cur, err := s.current()
		if err != nil {
			return fmt.Errorf("%w: no entry to descend through at level %d", ErrMalformedTree, s.level())
		}
		child, err := bucket.Load(ctx, store, cur.Message, s.top().Prefix().Child())
		if err != nil {
			return err
		}
		if child.Len() == 0 {
			return fmt.Errorf("%w: empty bucket at level %d", ErrMalformedTree, child.Level())
		}
		s.buckets = append(s.buckets, child)
		s.index = g(child.Entries())
	}
	return nil
}

// moveSideways advances the cursor one entry to the right, ascending
// while the current bucket is exhausted and descending back to the
// starting level along leftmost links. Reaching past the head of the
// root marks the cursor done.
func (s *state) moveSideways(ctx context.Context, store blockstore.Store) error {
	startLevel := s.level()
	for s.index == s.top().Len()-1 {
		if len(s.buckets) == 1 {
			s.done = true
			return nil
		}
		cur, err := s.current()
		if err != nil {
			return fmt.Errorf("%w: empty bucket below root", ErrMalformedTree)
		}
		s.buckets = s.buckets[:len(s.buckets)-1]
		s.index = byTuple(cur.Tuple())(s.top().Entries())
	}
	s.index++
	if s.level() != startLevel {
		return s.moveToLevel(ctx, store, startLevel, lowestIndex)
	}
	return nil
}

func (s *state) next(ctx context.Context, store blockstore.Store, level uint32) error {
	preLevel := s.level()
	if level != preLevel {
		if err := s.moveToLevel(ctx, store, level, nil); err != nil {
			return err
		}
	}
	if level >= preLevel {
		return s.moveSideways(ctx, store)
	}
	return nil
}

func (s *state) nextBucket(ctx context.Context, store blockstore.Store, level uint32) error {
	if level != s.level() {
		if err := s.moveToLevel(ctx, store, level, nil); err != nil {
			return err
		}
	}
	s.index = s.top().Len() - 1
	return s.moveSideways(ctx, store)
}

func (s *state) nextTuple(ctx context.Context, store blockstore.Store, t node.Tuple, level uint32) error {
	// Climb while the current bucket cannot contain t.
	for len(s.buckets) > 1 {
		boundary := s.top().Boundary()
		if boundary != nil && node.CompareTuples(boundary.Tuple(), t) >= 0 {
			break
		}
		if err := s.moveToLevel(ctx, store, s.level()+1, nil); err != nil {
			return err
		}
	}
	// Advance within the bucket, never backwards.
	if idx := byTuple(t)(s.top().Entries()); idx > s.index {
		s.index = idx
	}
	if level != s.level() {
		// When ascending, guide by the larger of t and the current tuple
		// so the move stays monotonic when the cursor is already past t.
		// When descending, guide by t: the current entry is a link whose
		// tuple is its child's boundary, not a position to keep.
		g := byTuple(t)
		if level > s.level() {
			if cur, err := s.current(); err == nil && node.CompareTuples(cur.Tuple(), t) > 0 {
				g = byTuple(cur.Tuple())
			}
		}
		return s.moveToLevel(ctx, store, level, g)
	}
	return nil
}

func (s *state) jumpTo(ctx context.Context, store blockstore.Store, t node.Tuple, level uint32) error {
	s.buckets = s.buckets[:1]
	s.index = byTuple(t)(s.top().Entries())
	if level < s.level() {
		return s.moveToLevel(ctx, store, level, byTuple(t))
	}
	return nil
}
