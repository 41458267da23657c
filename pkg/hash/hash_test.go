package hash

import (
	"bytes"
	"errors"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	for _, id := range []uint64{XXH64, SHA256, Highway64} {
		h, err := Get(id)
		if err != nil {
			t.Fatalf("Get(%#x) failed: %v", id, err)
		}
		if h.ID() != id {
			t.Errorf("hasher %#x reports id %#x", id, h.ID())
		}
	}
}

func TestRegistryUnknown(t *testing.T) {
	_, err := Get(0xdead)
	if !errors.Is(err, ErrUnknownHasher) {
		t.Errorf("expected ErrUnknownHasher, got %v", err)
	}
}

func TestDigestSizes(t *testing.T) {
	data := []byte("some block bytes")
	tests := []struct {
		id   uint64
		size int
	}{
		{XXH64, 8},
		{SHA256, 32},
		{Highway64, 8},
	}
	for _, tt := range tests {
		h, err := Get(tt.id)
		if err != nil {
			t.Fatalf("Get(%#x) failed: %v", tt.id, err)
		}
		if h.Size() != tt.size {
			t.Errorf("hasher %#x size = %d, want %d", tt.id, h.Size(), tt.size)
		}
		if got := len(h.Sum(data)); got != tt.size {
			t.Errorf("hasher %#x digest length = %d, want %d", tt.id, got, tt.size)
		}
	}
}

func TestDigestDeterministic(t *testing.T) {
	data := []byte("same input")
	for _, id := range []uint64{XXH64, SHA256, Highway64} {
		h, _ := Get(id)
		if !bytes.Equal(h.Sum(data), h.Sum(data)) {
			t.Errorf("hasher %#x not deterministic", id)
		}
		if bytes.Equal(h.Sum(data), h.Sum([]byte("other input"))) {
			t.Errorf("hasher %#x collides trivially", id)
		}
	}
}
