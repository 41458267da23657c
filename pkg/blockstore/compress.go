package blockstore

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/ProllyDB/prolly/pkg/cid"
)

// CompressedStore wraps another store and compresses block bytes at
// rest with zstd. Addressing is unaffected: CIDs are computed over the
// uncompressed bucket bytes, compression is transparent to readers.
type CompressedStore struct {
	inner   Store
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressedStore wraps inner with zstd compression.
func NewCompressedStore(inner Store) (*CompressedStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &CompressedStore{inner: inner, encoder: encoder, decoder: decoder}, nil
}

// Get fetches and decompresses the block stored under c.
func (s *CompressedStore) Get(ctx context.Context, c cid.CID) ([]byte, error) {
	compressed, err := s.inner.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress block %s: %w", c, err)
	}
	return data, nil
}

// Put compresses data and stores it under c.
func (s *CompressedStore) Put(ctx context.Context, c cid.CID, data []byte) error {
	compressed := s.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	return s.inner.Put(ctx, c, compressed)
}
