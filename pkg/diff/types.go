// Package diff defines structural diffs between tree states and
// computes them between two tree roots.
package diff

import (
	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/node"
)

// NodeDiff is one entry-level change. Before is nil for an addition,
// After is nil for a removal; both set means the tuple's message
// changed.
type NodeDiff struct {
	Before *node.Node
	After  *node.Node
}

// BucketDiff is one bucket-level change, same convention as NodeDiff.
type BucketDiff struct {
	Before *bucket.Bucket
	After  *bucket.Bucket
}

// Diff is one chunk of a streamed structural diff. Node diffs are
// ascending by tuple; the bucket diffs in a chunk cover the changes
// the node diffs belong to.
type Diff struct {
	Nodes   []NodeDiff
	Buckets []BucketDiff
}

// Empty reports whether the chunk carries no changes.
func (d Diff) Empty() bool {
	return len(d.Nodes) == 0 && len(d.Buckets) == 0
}
