package node

import (
	"bytes"
	"fmt"
)

// MinHashLen is the minimum length of an entry hash. The boundary
// predicate reads the first four bytes of the hash, so shorter hashes
// are rejected at decode time.
const MinHashLen = 4

// Tuple is the ordering key of an entry: a timestamp with a hash
// tie-breaker.
type Tuple struct {
	Timestamp int64
	Hash      []byte
}

// Node is a single tree entry. At level 0 Message is the user value;
// at higher levels it is the digest of the child bucket the entry
// points to.
type Node struct {
	Timestamp int64
	Hash      []byte
	Message   []byte
}

// NewNode creates a node, copying the byte slices so the node does not
// alias caller memory.
func NewNode(timestamp int64, hash, message []byte) Node {
	return Node{
		Timestamp: timestamp,
		Hash:      append([]byte(nil), hash...),
		Message:   append([]byte(nil), message...),
	}
}

// Tuple returns the node's ordering key. The hash is shared, not
// copied; tuples are treated as read-only.
func (n Node) Tuple() Tuple {
	return Tuple{Timestamp: n.Timestamp, Hash: n.Hash}
}

// Validate checks the structural constraints on a decoded node.
func (n Node) Validate() error {
	if len(n.Hash) < MinHashLen {
		return fmt.Errorf("entry hash too short: %d bytes, need at least %d", len(n.Hash), MinHashLen)
	}
	return nil
}

// CompareTuples orders tuples ascending by timestamp, ties broken by
// lexicographic comparison of the hash bytes.
func CompareTuples(a, b Tuple) int {
	if a.Timestamp < b.Timestamp {
		return -1
	}
	if a.Timestamp > b.Timestamp {
		return 1
	}
	return bytes.Compare(a.Hash, b.Hash)
}

// CompareNodes orders nodes by their tuples.
func CompareNodes(a, b Node) int {
	return CompareTuples(a.Tuple(), b.Tuple())
}

// Equal reports whether two nodes have the same tuple and message.
func (n Node) Equal(o Node) bool {
	return n.Timestamp == o.Timestamp &&
		bytes.Equal(n.Hash, o.Hash) &&
		bytes.Equal(n.Message, o.Message)
}

func (t Tuple) String() string {
	return fmt.Sprintf("(%d, %x)", t.Timestamp, t.Hash)
}
