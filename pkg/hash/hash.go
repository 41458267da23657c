// Package hash provides the digest functions a tree can address its
// buckets with. Hashers are looked up by the identifier persisted in
// every bucket prefix.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/minio/highwayhash"
)

// Hasher identifiers persisted in bucket prefixes. SHA2-256 uses the
// multihash code; the non-cryptographic hashers use project-local
// codes.
const (
	SHA256    uint64 = 0x12
	XXH64     uint64 = 0x1e
	Highway64 uint64 = 0x1f
)

var ErrUnknownHasher = errors.New("unknown hasher id")

// Hasher computes a fixed-length digest over a block of bytes.
type Hasher interface {
	// ID returns the identifier persisted in bucket prefixes.
	ID() uint64
	// Size returns the digest length in bytes.
	Size() int
	// Sum returns the digest of data.
	Sum(data []byte) []byte
}

var (
	mu       sync.RWMutex
	registry = map[uint64]Hasher{}
)

// Register makes a hasher available for lookup by its ID. Later
// registrations replace earlier ones.
func Register(h Hasher) {
	mu.Lock()
	defer mu.Unlock()
	registry[h.ID()] = h
}

// Get returns the hasher registered under id.
func Get(id uint64) (Hasher, error) {
	mu.RLock()
	defer mu.RUnlock()
	h, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownHasher, id)
	}
	return h, nil
}

func init() {
	Register(xxh64Hasher{})
	Register(sha256Hasher{})
	Register(highwayHasher{})
}

type xxh64Hasher struct{}

func (xxh64Hasher) ID() uint64 { return XXH64 }
func (xxh64Hasher) Size() int  { return 8 }

func (xxh64Hasher) Sum(data []byte) []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], xxhash.Sum64(data))
	return out[:]
}

type sha256Hasher struct{}

func (sha256Hasher) ID() uint64 { return SHA256 }
func (sha256Hasher) Size() int  { return sha256.Size }

func (sha256Hasher) Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// highwayKey is the fixed all-zero key for the highwayhash hasher.
// Content addressing needs every writer to agree on the key, so it is
// part of the format rather than configuration.
var highwayKey [32]byte

type highwayHasher struct{}

func (highwayHasher) ID() uint64 { return Highway64 }
func (highwayHasher) Size() int  { return 8 }

func (highwayHasher) Sum(data []byte) []byte {
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], highwayhash.Sum64(data, highwayKey[:]))
	return out[:]
}
