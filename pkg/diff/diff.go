package diff

import (
	"bytes"
	"context"
	"math"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/cursor"
	"github.com/ProllyDB/prolly/pkg/node"
)

// Roots computes the structural diff between two tree roots, streaming
// chunks through emit in ascending tuple order. Left-side changes
// (present in a, absent or different in b) fill Before; right-side
// changes fill After. Subtrees whose bucket digests match on both
// sides are skipped without loading their children.
func Roots(ctx context.Context, storeA, storeB blockstore.Store, rootA, rootB *bucket.Bucket, emit func(Diff) error) error {
	a := newSide(storeA, rootA, true)
	b := newSide(storeB, rootB, false)

	minTuple := node.Tuple{Timestamp: math.MinInt64}
	if err := a.seekStart(ctx, minTuple); err != nil {
		return err
	}
	if err := b.seekStart(ctx, minTuple); err != nil {
		return err
	}

	var pending Diff
	flush := func() error {
		if pending.Empty() {
			return nil
		}
		chunk := pending
		pending = Diff{}
		if emit == nil {
			return nil
		}
		return emit(chunk)
	}

	for !a.exhausted && !b.exhausted {
		// Identical subtree skip: both sides at the first leaf of
		// subtrees with equal digests.
		if level, ok := equalSubtree(a.cur, b.cur); ok {
			if err := a.skip(ctx, level); err != nil {
				return err
			}
			if err := b.skip(ctx, level); err != nil {
				return err
			}
			continue
		}

		na, err := a.cur.Current()
		if err != nil {
			return err
		}
		nb, err := b.cur.Current()
		if err != nil {
			return err
		}

		switch cmp := node.CompareTuples(na.Tuple(), nb.Tuple()); {
		case cmp < 0:
			left := na
			pending.Nodes = append(pending.Nodes, NodeDiff{Before: &left})
			if err := a.step(ctx, &pending); err != nil {
				return err
			}
		case cmp > 0:
			right := nb
			pending.Nodes = append(pending.Nodes, NodeDiff{After: &right})
			if err := b.step(ctx, &pending); err != nil {
				return err
			}
		default:
			if !bytes.Equal(na.Message, nb.Message) {
				left, right := na, nb
				pending.Nodes = append(pending.Nodes, NodeDiff{Before: &left, After: &right})
			}
			if err := a.step(ctx, &pending); err != nil {
				return err
			}
			if err := b.step(ctx, &pending); err != nil {
				return err
			}
		}

		// Yield a chunk whenever bucket changes have accumulated: the
		// node diffs so far are covered by those buckets.
		if len(pending.Buckets) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	for !a.exhausted {
		na, err := a.cur.Current()
		if err != nil {
			return err
		}
		left := na
		pending.Nodes = append(pending.Nodes, NodeDiff{Before: &left})
		if err := a.step(ctx, &pending); err != nil {
			return err
		}
	}
	for !b.exhausted {
		nb, err := b.cur.Current()
		if err != nil {
			return err
		}
		right := nb
		pending.Nodes = append(pending.Nodes, NodeDiff{After: &right})
		if err := b.step(ctx, &pending); err != nil {
			return err
		}
	}

	return flush()
}

// side is one half of the lockstep walk: a leaf-level cursor plus
// bookkeeping for emitting a bucket diff once per touched bucket.
type side struct {
	cur       *cursor.Cursor
	left      bool
	exhausted bool
	touched   *bucket.Bucket
}

func newSide(store blockstore.Store, root *bucket.Bucket, left bool) *side {
	return &side{cur: cursor.New(store, root), left: left}
}

func (s *side) seekStart(ctx context.Context, min node.Tuple) error {
	if err := s.cur.JumpTo(ctx, min, 0); err != nil {
		return err
	}
	if s.cur.Index() < 0 {
		s.exhausted = true
	}
	return nil
}

// step consumes the current entry: it marks the current bucket as
// touched and advances; when the walk leaves a touched bucket its
// bucket diff is appended to pending.
func (s *side) step(ctx context.Context, pending *Diff) error {
	s.touched = s.cur.CurrentBucket()
	if err := s.cur.Next(ctx); err != nil {
		return err
	}
	if s.cur.Done() {
		s.exhausted = true
	}
	if s.exhausted || s.cur.CurrentBucket() != s.touched {
		s.appendBucketDiff(pending)
	}
	return nil
}

// skip jumps past the subtree rooted at the given level without
// touching it.
func (s *side) skip(ctx context.Context, level uint32) error {
	if err := s.cur.NextBucketAtLevel(ctx, level); err != nil {
		return err
	}
	if s.cur.Done() {
		s.exhausted = true
		return nil
	}
	if s.cur.Level() != 0 {
		if err := s.cur.NextAtLevel(ctx, 0); err != nil {
			return err
		}
		if s.cur.Done() {
			s.exhausted = true
		}
	}
	return nil
}

func (s *side) appendBucketDiff(pending *Diff) {
	if s.touched == nil {
		return
	}
	bd := BucketDiff{}
	if s.left {
		bd.Before = s.touched
	} else {
		bd.After = s.touched
	}
	pending.Buckets = append(pending.Buckets, bd)
	s.touched = nil
}

// equalSubtree reports the highest level at which both cursors sit at
// the first leaf of subtrees with equal digests. Equality at a level
// implies equality below it, so skipping at the highest level skips
// the most work.
func equalSubtree(a, b *cursor.Cursor) (uint32, bool) {
	if a.Index() != 0 || b.Index() != 0 {
		return 0, false
	}
	sa, sb := a.Buckets(), b.Buckets()
	maxA := firstLinkHeight(sa)
	maxB := firstLinkHeight(sb)
	max := maxA
	if maxB < max {
		max = maxB
	}
	for level := int(max); level >= 0; level-- {
		ba := sa[len(sa)-1-level]
		bb := sb[len(sb)-1-level]
		if bytes.Equal(ba.Digest(), bb.Digest()) {
			return uint32(level), true
		}
	}
	return 0, false
}

// firstLinkHeight returns the highest level whose bucket's subtree
// starts exactly at the cursor's leaf: every parent-child link below
// it is a first-entry link.
func firstLinkHeight(stack []*bucket.Bucket) uint32 {
	height := uint32(0)
	for k := len(stack) - 1; k > 0; k-- {
		parent, child := stack[k-1], stack[k]
		if parent.Len() == 0 || !bytes.Equal(parent.EntryAt(0).Message, child.Digest()) {
			break
		}
		height = parent.Level()
	}
	return height
}
