package bucket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ProllyDB/prolly/pkg/node"
)

// Codec identifiers persisted in bucket prefixes.
const (
	// CodecNative is the fixed-width little-endian binary codec.
	CodecNative uint64 = 0x70
	// CodecCBOR is the deterministic CBOR codec.
	CodecCBOR uint64 = 0x71
)

var ErrUnknownCodec = errors.New("unknown codec id")

// Codec serializes buckets. Encodings must be canonical: Decode MUST
// reject any input that Encode would not have produced for the decoded
// content, otherwise content addressing breaks.
type Codec interface {
	// ID returns the identifier persisted in bucket prefixes.
	ID() uint64
	// Encode serializes a prefix and its entries.
	Encode(prefix Prefix, entries []node.Node) ([]byte, error)
	// Decode parses data, failing on any non-canonical input.
	Decode(data []byte) (Prefix, []node.Node, error)
}

var (
	codecMu sync.RWMutex
	codecs  = map[uint64]Codec{}
)

// RegisterCodec makes a codec available for lookup by its ID.
func RegisterCodec(c Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	codecs[c.ID()] = c
}

// GetCodec returns the codec registered under id.
func GetCodec(id uint64) (Codec, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	c, ok := codecs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownCodec, id)
	}
	return c, nil
}

func init() {
	RegisterCodec(nativeCodec{})
	RegisterCodec(newCBORCodec())
}

// validateEntries checks the constraints shared by every codec:
// hashes long enough for the boundary predicate and strictly
// ascending tuple order.
func validateEntries(entries []node.Node) error {
	for i, n := range entries {
		if err := n.Validate(); err != nil {
			return err
		}
		if i > 0 && node.CompareNodes(entries[i-1], n) >= 0 {
			return fmt.Errorf("entries out of order at index %d", i)
		}
	}
	return nil
}
