// Package bucket provides the immutable bucket value type, the codec
// contract its serialized form follows, and verified loading of
// buckets from a block store.
package bucket

import (
	"errors"
	"fmt"

	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/hash"
	"github.com/ProllyDB/prolly/pkg/node"
)

var (
	// ErrMalformedBlock means bytes failed to decode or were not the
	// canonical encoding of their content.
	ErrMalformedBlock = errors.New("malformed block")
	// ErrDigestMismatch means fetched bytes do not hash to the digest
	// they were requested under.
	ErrDigestMismatch = errors.New("block digest mismatch")
	// ErrPrefixMismatch means a decoded bucket's prefix differs from
	// the prefix the tree expects.
	ErrPrefixMismatch = errors.New("bucket prefix mismatch")
	// ErrLevelMismatch means a decoded bucket's level differs from the
	// level the link pointed at.
	ErrLevelMismatch = errors.New("bucket level mismatch")
)

// Prefix is the per-bucket header. Average, Codec and Hasher are fixed
// per tree; only Level varies between buckets.
type Prefix struct {
	Average uint32
	Level   uint32
	Codec   uint64
	Hasher  uint64
}

// Equal reports whether two prefixes match in all fields.
func (p Prefix) Equal(o Prefix) bool {
	return p == o
}

// Child returns the prefix of a child bucket one level down.
func (p Prefix) Child() Prefix {
	p.Level--
	return p
}

// Parent returns the prefix of a parent bucket one level up.
func (p Prefix) Parent() Prefix {
	p.Level++
	return p
}

// Bucket is an ordered run of entries at one level, frozen together
// with its serialized bytes and their digest. Buckets are immutable
// once created; children are referenced by digest, never by pointer.
type Bucket struct {
	prefix  Prefix
	entries []node.Node
	data    []byte
	digest  []byte
}

// New encodes entries under prefix and digests the result. Entries
// must already be strictly ascending by tuple.
func New(prefix Prefix, entries []node.Node) (*Bucket, error) {
	codec, err := GetCodec(prefix.Codec)
	if err != nil {
		return nil, err
	}
	hasher, err := hash.Get(prefix.Hasher)
	if err != nil {
		return nil, err
	}
	data, err := codec.Encode(prefix, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bucket: %w", err)
	}
	return &Bucket{
		prefix:  prefix,
		entries: entries,
		data:    data,
		digest:  hasher.Sum(data),
	}, nil
}

// NewEmpty creates a bucket with no entries at prefix's level.
func NewEmpty(prefix Prefix) (*Bucket, error) {
	return New(prefix, nil)
}

// Prefix returns the bucket header.
func (b *Bucket) Prefix() Prefix { return b.prefix }

// Level returns the bucket's tree level.
func (b *Bucket) Level() uint32 { return b.prefix.Level }

// Entries returns the bucket's entry slice. Callers must treat it as
// read-only.
func (b *Bucket) Entries() []node.Node { return b.entries }

// Len returns the number of entries.
func (b *Bucket) Len() int { return len(b.entries) }

// EntryAt returns the entry at index i.
func (b *Bucket) EntryAt(i int) node.Node { return b.entries[i] }

// Bytes returns the serialized form. Read-only.
func (b *Bucket) Bytes() []byte { return b.data }

// Digest returns the digest of the serialized bytes. Read-only.
func (b *Bucket) Digest() []byte { return b.digest }

// CID returns the bucket's content identifier.
func (b *Bucket) CID() cid.CID {
	return cid.New(b.prefix.Codec, b.prefix.Hasher, b.digest)
}

// Boundary returns the last entry, or nil for an empty bucket.
func (b *Bucket) Boundary() *node.Node {
	if len(b.entries) == 0 {
		return nil
	}
	last := b.entries[len(b.entries)-1]
	return &last
}

// ParentEntry returns the entry this bucket contributes one level up:
// the boundary tuple with the bucket digest as message. Nil for an
// empty bucket.
func (b *Bucket) ParentEntry() *node.Node {
	boundary := b.Boundary()
	if boundary == nil {
		return nil
	}
	return &node.Node{
		Timestamp: boundary.Timestamp,
		Hash:      boundary.Hash,
		Message:   b.digest,
	}
}
