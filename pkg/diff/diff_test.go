package diff_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/diff"
	"github.com/ProllyDB/prolly/pkg/node"
	"github.com/ProllyDB/prolly/pkg/tree"
)

func makeNodes(from, to int) []node.Node {
	nodes := make([]node.Node, 0, to-from)
	for i := from; i < to; i++ {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(i))
		sum := sha256.Sum256(buf[:])
		nodes = append(nodes, node.NewNode(int64(i), sum[:4], buf[:]))
	}
	return nodes
}

func buildTree(t *testing.T, store blockstore.Store, nodes []node.Node) *tree.Tree {
	t.Helper()
	tr, err := tree.Init(context.Background(), store, tree.NewDefaultConfig())
	if err != nil {
		t.Fatalf("failed to init tree: %v", err)
	}
	updates := make([]tree.Update, 0, len(nodes))
	for _, nd := range nodes {
		updates = append(updates, tree.Add(nd))
	}
	if len(updates) > 0 {
		if err := tr.Mutate(context.Background(), store, updates, nil); err != nil {
			t.Fatalf("failed to build tree: %v", err)
		}
	}
	return tr
}

func collect(t *testing.T, storeA, storeB blockstore.Store, a, b *tree.Tree) []diff.NodeDiff {
	t.Helper()
	var nodes []diff.NodeDiff
	err := diff.Roots(context.Background(), storeA, storeB, a.Root(), b.Root(), func(d diff.Diff) error {
		nodes = append(nodes, d.Nodes...)
		return nil
	})
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	return nodes
}

func TestDiffOverlappingTrees(t *testing.T) {
	store := blockstore.NewMemStore()
	t1 := buildTree(t, store, makeNodes(0, 32))
	t2 := buildTree(t, store, makeNodes(16, 48))

	nodes := collect(t, store, store, t1, t2)

	var removed, added []int64
	for i, nd := range nodes {
		switch {
		case nd.Before != nil && nd.After != nil:
			t.Errorf("unexpected modification diff for %v", nd.Before.Tuple())
		case nd.Before != nil:
			removed = append(removed, nd.Before.Timestamp)
		default:
			added = append(added, nd.After.Timestamp)
		}
		if i > 0 {
			prev, cur := nodes[i-1], nodes[i]
			if node.CompareTuples(diffTuple(prev), diffTuple(cur)) > 0 {
				t.Errorf("diff emission out of order at %d", i)
			}
		}
	}

	if len(removed) != 16 {
		t.Fatalf("got %d removals, want 16", len(removed))
	}
	for i, ts := range removed {
		if ts != int64(i) {
			t.Errorf("removal %d has timestamp %d, want %d", i, ts, i)
		}
	}
	if len(added) != 16 {
		t.Fatalf("got %d additions, want 16", len(added))
	}
	for i, ts := range added {
		if ts != int64(32+i) {
			t.Errorf("addition %d has timestamp %d, want %d", i, ts, 32+i)
		}
	}
}

func diffTuple(nd diff.NodeDiff) node.Tuple {
	if nd.Before != nil {
		return nd.Before.Tuple()
	}
	return nd.After.Tuple()
}

func TestDiffIdenticalTrees(t *testing.T) {
	store := blockstore.NewMemStore()
	t1 := buildTree(t, store, makeNodes(0, 100))
	t2 := buildTree(t, store, makeNodes(0, 100))

	var chunks int
	err := diff.Roots(context.Background(), store, store, t1.Root(), t2.Root(), func(d diff.Diff) error {
		chunks++
		return nil
	})
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if chunks != 0 {
		t.Errorf("identical trees emitted %d chunks", chunks)
	}
}

func TestDiffAgainstEmpty(t *testing.T) {
	store := blockstore.NewMemStore()
	empty := buildTree(t, store, nil)
	full := buildTree(t, store, makeNodes(0, 25))

	nodes := collect(t, store, store, empty, full)
	if len(nodes) != 25 {
		t.Fatalf("got %d diffs, want 25", len(nodes))
	}
	for i, nd := range nodes {
		if nd.Before != nil || nd.After == nil {
			t.Fatalf("diff %d is not an addition", i)
		}
		if nd.After.Timestamp != int64(i) {
			t.Errorf("diff %d out of order", i)
		}
	}
}

func TestDiffModifiedMessages(t *testing.T) {
	store := blockstore.NewMemStore()
	base := makeNodes(0, 40)
	t1 := buildTree(t, store, base)

	changed := append([]node.Node(nil), base...)
	changed[7] = node.NewNode(base[7].Timestamp, base[7].Hash, []byte("rewritten"))
	t2 := buildTree(t, store, changed)

	nodes := collect(t, store, store, t1, t2)
	if len(nodes) != 1 {
		t.Fatalf("got %d diffs, want 1", len(nodes))
	}
	nd := nodes[0]
	if nd.Before == nil || nd.After == nil {
		t.Fatalf("expected a modification pair, got %+v", nd)
	}
	if nd.Before.Timestamp != 7 || string(nd.After.Message) != "rewritten" {
		t.Errorf("wrong modification reported: %+v", nd)
	}
}

func TestDiffSymmetry(t *testing.T) {
	store := blockstore.NewMemStore()
	t1 := buildTree(t, store, makeNodes(0, 32))
	t2 := buildTree(t, store, makeNodes(16, 48))

	forward := collect(t, store, store, t1, t2)
	backward := collect(t, store, store, t2, t1)

	if len(forward) != len(backward) {
		t.Fatalf("asymmetric diff sizes: %d vs %d", len(forward), len(backward))
	}
	for i := range forward {
		f, b := forward[i], backward[i]
		if !nodePtrEqual(f.Before, b.After) || !nodePtrEqual(f.After, b.Before) {
			t.Errorf("diff %d is not the pairwise swap of its mirror", i)
		}
	}
}

func nodePtrEqual(a, b *node.Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func TestDiffAppliedToLeftYieldsRight(t *testing.T) {
	ctx := context.Background()
	store := blockstore.NewMemStore()
	t1 := buildTree(t, store, makeNodes(0, 32))
	t2 := buildTree(t, store, makeNodes(16, 48))

	nodes := collect(t, store, store, t1, t2)

	updates := make([]tree.Update, 0, len(nodes))
	for _, nd := range nodes {
		if nd.After != nil {
			updates = append(updates, tree.Add(*nd.After))
		} else {
			updates = append(updates, tree.Rm(nd.Before.Tuple()))
		}
	}

	patched := t1.Clone()
	if err := patched.Mutate(ctx, store, updates, nil); err != nil {
		t.Fatalf("failed to apply diff: %v", err)
	}
	if !bytes.Equal(patched.Root().Digest(), t2.Root().Digest()) {
		t.Errorf("applying the diff did not reproduce the target tree")
	}
}

func TestDiffEmitsBucketChanges(t *testing.T) {
	store := blockstore.NewMemStore()
	t1 := buildTree(t, store, makeNodes(0, 32))
	t2 := buildTree(t, store, makeNodes(16, 48))

	var hasLeft, hasRight bool
	err := diff.Roots(context.Background(), store, store, t1.Root(), t2.Root(), func(d diff.Diff) error {
		for _, bd := range d.Buckets {
			if bd.Before != nil {
				hasLeft = true
			}
			if bd.After != nil {
				hasRight = true
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if !hasLeft || !hasRight {
		t.Errorf("bucket diffs missing a side: left=%v right=%v", hasLeft, hasRight)
	}
}
