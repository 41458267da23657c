package blockstore

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/stats"
)

func testCID(b byte) cid.CID {
	return cid.New(0x70, 0x1e, []byte{b, 1, 2, 3, 4, 5, 6, 7})
}

func TestMemStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	c := testCID(1)
	data := []byte("block bytes")
	if err := store.Put(ctx, c, data); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, c)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d blocks, want 1", store.Len())
	}
}

func TestMemStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	if _, err := store.Get(ctx, testCID(9)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreIdempotentPut(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	c := testCID(2)

	if err := store.Put(ctx, c, []byte("first")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	// A second put under the same CID is a no-op; content addressing
	// means equal CIDs imply equal bytes.
	if err := store.Put(ctx, c, []byte("first")); err != nil {
		t.Fatalf("second put failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d blocks, want 1", store.Len())
	}
}

func TestMemStoreCopiesData(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	c := testCID(3)

	data := []byte("mutable")
	store.Put(ctx, c, data)
	data[0] = 'X'

	got, _ := store.Get(ctx, c)
	if got[0] != 'm' {
		t.Errorf("stored bytes alias caller memory")
	}

	got[0] = 'Y'
	again, _ := store.Get(ctx, c)
	if again[0] != 'm' {
		t.Errorf("returned bytes alias stored memory")
	}
}

func TestCompressedStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := NewMemStore()
	store, err := NewCompressedStore(inner)
	if err != nil {
		t.Fatalf("failed to create compressed store: %v", err)
	}

	c := testCID(4)
	data := bytes.Repeat([]byte("abcdefgh"), 512)
	if err := store.Put(ctx, c, data); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := store.Get(ctx, c)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch")
	}

	// The stored form is the compressed one.
	raw, err := inner.Get(ctx, c)
	if err != nil {
		t.Fatalf("inner get failed: %v", err)
	}
	if len(raw) >= len(data) {
		t.Errorf("repetitive block did not compress: %d >= %d", len(raw), len(data))
	}
}

func TestCompressedStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := NewCompressedStore(NewMemStore())
	if _, err := store.Get(ctx, testCID(5)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAFSStoreMemScheme(t *testing.T) {
	ctx := context.Background()
	store := NewAFSStore("mem://localhost/prolly-test-blocks")

	c := testCID(6)
	data := []byte("afs block")
	if err := store.Put(ctx, c, data); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, err := store.Get(ctx, c)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("round trip mismatch")
	}
	if _, err := store.Get(ctx, testCID(7)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInstrumentedStoreCounts(t *testing.T) {
	ctx := context.Background()
	collector := stats.NewCollector()
	store := NewInstrumentedStore(NewMemStore(), nil, collector)

	c := testCID(8)
	data := []byte("counted")
	if err := store.Put(ctx, c, data); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := store.Get(ctx, c); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if _, err := store.Get(ctx, testCID(9)); err == nil {
		t.Fatalf("expected miss")
	}

	got := collector.GetStats()
	if got["ops.block_put"] != uint64(1) {
		t.Errorf("ops.block_put = %v, want 1", got["ops.block_put"])
	}
	if got["ops.block_get"] != uint64(1) {
		t.Errorf("ops.block_get = %v, want 1", got["ops.block_get"])
	}
	if got["errs.block_get"] != uint64(1) {
		t.Errorf("errs.block_get = %v, want 1", got["errs.block_get"])
	}
	if got["bytes.written"] != uint64(len(data)) {
		t.Errorf("bytes.written = %v, want %d", got["bytes.written"], len(data))
	}
}
