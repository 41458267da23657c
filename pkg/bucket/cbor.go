package bucket

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/ProllyDB/prolly/pkg/node"
)

// cborCodec serializes buckets as deterministic CBOR. Determinism
// comes from Core Deterministic encoding options; canonicality is
// enforced by re-encoding the decoded value and comparing bytes.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

type cborEntry struct {
	_         struct{} `cbor:",toarray"`
	Timestamp int64
	Hash      []byte
	Message   []byte
}

type cborBucket struct {
	_       struct{} `cbor:",toarray"`
	Average uint32
	Level   uint32
	Codec   uint64
	Hasher  uint64
	Entries []cborEntry
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
	return cborCodec{enc: enc, dec: dec}
}

func (c cborCodec) ID() uint64 { return CodecCBOR }

func (c cborCodec) Encode(prefix Prefix, entries []node.Node) ([]byte, error) {
	wire := cborBucket{
		Average: prefix.Average,
		Level:   prefix.Level,
		Codec:   prefix.Codec,
		Hasher:  prefix.Hasher,
		Entries: make([]cborEntry, 0, len(entries)),
	}
	for _, n := range entries {
		wire.Entries = append(wire.Entries, cborEntry{
			Timestamp: n.Timestamp,
			Hash:      n.Hash,
			Message:   n.Message,
		})
	}
	return c.enc.Marshal(wire)
}

func (c cborCodec) Decode(data []byte) (Prefix, []node.Node, error) {
	var prefix Prefix
	var wire cborBucket
	if err := c.dec.Unmarshal(data, &wire); err != nil {
		return prefix, nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	prefix = Prefix{
		Average: wire.Average,
		Level:   wire.Level,
		Codec:   wire.Codec,
		Hasher:  wire.Hasher,
	}
	if prefix.Average == 0 {
		return prefix, nil, fmt.Errorf("%w: zero average", ErrMalformedBlock)
	}

	entries := make([]node.Node, 0, len(wire.Entries))
	for _, e := range wire.Entries {
		entries = append(entries, node.NewNode(e.Timestamp, e.Hash, e.Message))
	}
	if err := validateEntries(entries); err != nil {
		return prefix, nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}

	// Reject any input that is not the canonical encoding of its own
	// content.
	canonical, err := c.Encode(prefix, entries)
	if err != nil {
		return prefix, nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	if !bytes.Equal(canonical, data) {
		return prefix, nil, fmt.Errorf("%w: non-canonical encoding", ErrMalformedBlock)
	}
	return prefix, entries, nil
}
