package blockstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/ProllyDB/prolly/pkg/cid"
)

// AFSStore persists blocks through the viant/afs storage abstraction,
// so the same store works over file, mem, and cloud object URLs.
// Blocks are laid out under baseURL fanned out by the first digest
// byte: <baseURL>/<dd>/<codec>-<hasher>-<digest>.blk.
type AFSStore struct {
	fs      afs.Service
	baseURL string
}

// NewAFSStore creates a store rooted at baseURL, e.g.
// "file:///var/lib/prolly/blocks" or "mem://localhost/blocks".
func NewAFSStore(baseURL string) *AFSStore {
	return &AFSStore{
		fs:      afs.New(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *AFSStore) blockURL(c cid.CID) string {
	digest := hex.EncodeToString(c.Digest)
	fan := "00"
	if len(digest) >= 2 {
		fan = digest[:2]
	}
	return fmt.Sprintf("%s/%s/%x-%x-%s.blk", s.baseURL, fan, c.Codec, c.Hasher, digest)
}

// Get downloads the block stored under c.
func (s *AFSStore) Get(ctx context.Context, c cid.CID) ([]byte, error) {
	url := s.blockURL(c)
	if ok, _ := s.fs.Exists(ctx, url); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c)
	}
	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download block %s: %w", c, err)
	}
	return data, nil
}

// Put uploads the block under c unless it already exists.
func (s *AFSStore) Put(ctx context.Context, c cid.CID, data []byte) error {
	url := s.blockURL(c)
	if ok, _ := s.fs.Exists(ctx, url); ok {
		return nil
	}
	if err := s.fs.Upload(ctx, url, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload block %s: %w", c, err)
	}
	return nil
}
