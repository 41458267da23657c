package bucket

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ProllyDB/prolly/pkg/blockstore"
	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/hash"
)

// Load fetches the bucket stored under digest, decodes it, and
// verifies it against the prefix the link promised: the decoded prefix
// must match field for field, and the fetched bytes must hash back to
// the requested digest.
func Load(ctx context.Context, store blockstore.Store, digest []byte, expected Prefix) (*Bucket, error) {
	c := cid.New(expected.Codec, expected.Hasher, digest)
	data, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}

	codec, err := GetCodec(expected.Codec)
	if err != nil {
		return nil, err
	}
	prefix, entries, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}

	if prefix.Level != expected.Level {
		return nil, fmt.Errorf("%w: got level %d, expected %d", ErrLevelMismatch, prefix.Level, expected.Level)
	}
	if !prefix.Equal(expected) {
		return nil, fmt.Errorf("%w: got %+v, expected %+v", ErrPrefixMismatch, prefix, expected)
	}

	hasher, err := hash.Get(expected.Hasher)
	if err != nil {
		return nil, err
	}
	if sum := hasher.Sum(data); !bytes.Equal(sum, digest) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrDigestMismatch, sum, digest)
	}

	return &Bucket{
		prefix:  prefix,
		entries: entries,
		data:    data,
		digest:  append([]byte(nil), digest...),
	}, nil
}

// LoadRoot fetches a root bucket by CID alone. Unlike Load there is
// no expected prefix: the prefix comes from the decoded bytes, and
// only its codec and hasher fields are checked against the CID.
func LoadRoot(ctx context.Context, store blockstore.Store, c cid.CID) (*Bucket, error) {
	data, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}

	codec, err := GetCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	prefix, entries, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	if prefix.Codec != c.Codec || prefix.Hasher != c.Hasher {
		return nil, fmt.Errorf("%w: prefix ids %#x/%#x do not match cid %s",
			ErrPrefixMismatch, prefix.Codec, prefix.Hasher, c)
	}

	hasher, err := hash.Get(c.Hasher)
	if err != nil {
		return nil, err
	}
	if sum := hasher.Sum(data); !bytes.Equal(sum, c.Digest) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrDigestMismatch, sum, c.Digest)
	}

	return &Bucket{
		prefix:  prefix,
		entries: entries,
		data:    data,
		digest:  append([]byte(nil), c.Digest...),
	}, nil
}

// Save writes the bucket's bytes to the store under its CID.
func Save(ctx context.Context, store blockstore.Store, b *Bucket) error {
	if err := store.Put(ctx, b.CID(), b.Bytes()); err != nil {
		return fmt.Errorf("failed to store bucket %s: %w", b.CID(), err)
	}
	return nil
}
