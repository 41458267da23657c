// Package tree ties the core together: the Tree type over a root
// bucket, creation and loading, point and range reads, and the
// mutation engine that rebuilds the tree bottom-up.
package tree

import (
	"context"
	"errors"
	"fmt"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/cursor"
	"github.com/ProllyDB/prolly/pkg/node"
)

var (
	// ErrBadInput is returned for an update batch that is not strictly
	// ascending by tuple.
	ErrBadInput = errors.New("updates must be strictly ascending by tuple")
	// ErrNoNewRoot means the mutation loop drained its work without
	// converging on a root. Valid input cannot produce it.
	ErrNoNewRoot = errors.New("mutation terminated without a new root")
)

// Tree is an ordered key/value index whose shape is a deterministic
// function of its contents. A Tree owns exactly one root reference.
type Tree struct {
	root *bucket.Bucket
}

// New wraps an existing root bucket.
func New(root *bucket.Bucket) *Tree {
	return &Tree{root: root}
}

// CreateEmpty builds the canonical empty tree: a single empty bucket
// at level 0.
func CreateEmpty(cfg *Config) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	root, err := bucket.NewEmpty(cfg.Prefix(0))
	if err != nil {
		return nil, err
	}
	return &Tree{root: root}, nil
}

// Init creates the canonical empty tree and persists its root block.
func Init(ctx context.Context, store blockstore.Store, cfg *Config) (*Tree, error) {
	t, err := CreateEmpty(cfg)
	if err != nil {
		return nil, err
	}
	if err := bucket.Save(ctx, store, t.root); err != nil {
		return nil, err
	}
	return t, nil
}

// Load opens a tree from the root block stored under c.
func Load(ctx context.Context, store blockstore.Store, c cid.CID) (*Tree, error) {
	root, err := bucket.LoadRoot(ctx, store, c)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree root: %w", err)
	}
	return &Tree{root: root}, nil
}

// Root returns the root bucket.
func (t *Tree) Root() *bucket.Bucket { return t.root }

// RootCID returns the content identifier of the root bucket.
func (t *Tree) RootCID() cid.CID { return t.root.CID() }

// Config returns the shape parameters recorded in the root prefix.
func (t *Tree) Config() *Config {
	p := t.root.Prefix()
	return &Config{AverageBucketSize: p.Average, Codec: p.Codec, Hasher: p.Hasher}
}

// Empty reports whether this is the canonical empty tree.
func (t *Tree) Empty() bool {
	return t.root.Level() == 0 && t.root.Len() == 0
}

// Clone returns a tree sharing the same root bucket but with an
// independent root slot: mutating the clone never moves this tree's
// root.
func (t *Tree) Clone() *Tree {
	return &Tree{root: t.root}
}

// Cursor returns a fresh cursor over the tree.
func (t *Tree) Cursor(store blockstore.Store) *cursor.Cursor {
	return cursor.New(store, t.root)
}

// SearchResult pairs a looked-up tuple with the entry found for it;
// Node is nil on a miss.
type SearchResult struct {
	Tuple node.Tuple
	Node  *node.Node
}

// Search performs a batched point lookup. Tuples must be strictly
// ascending; the whole batch is answered in one forward cursor pass.
func (t *Tree) Search(ctx context.Context, store blockstore.Store, tuples []node.Tuple) ([]SearchResult, error) {
	for i := 1; i < len(tuples); i++ {
		if node.CompareTuples(tuples[i-1], tuples[i]) >= 0 {
			return nil, fmt.Errorf("%w: tuple %d", ErrBadInput, i)
		}
	}
	cur := t.Cursor(store)
	results := make([]SearchResult, 0, len(tuples))
	for _, tup := range tuples {
		if cur.Done() {
			results = append(results, SearchResult{Tuple: tup})
			continue
		}
		if err := cur.NextTuple(ctx, tup, 0); err != nil {
			return nil, err
		}
		found, err := cur.Current()
		if err != nil || node.CompareTuples(found.Tuple(), tup) != 0 {
			results = append(results, SearchResult{Tuple: tup})
			continue
		}
		entry := found
		results = append(results, SearchResult{Tuple: tup, Node: &entry})
	}
	return results, nil
}

// Range calls fn for every entry with start <= tuple <= end, in
// ascending order. fn returning an error stops the scan.
func (t *Tree) Range(ctx context.Context, store blockstore.Store, start, end node.Tuple, fn func(node.Node) error) error {
	if t.Empty() {
		return nil
	}
	cur := t.Cursor(store)
	if err := cur.NextTuple(ctx, start, 0); err != nil {
		return err
	}
	for !cur.Done() {
		entry, err := cur.Current()
		if err != nil {
			return err
		}
		if node.CompareTuples(entry.Tuple(), end) > 0 {
			return nil
		}
		if node.CompareTuples(entry.Tuple(), start) >= 0 {
			if err := fn(entry); err != nil {
				return err
			}
		}
		if err := cur.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}
