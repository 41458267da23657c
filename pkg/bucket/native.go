package bucket

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ProllyDB/prolly/pkg/node"
)

// nativeCodec is the fixed-width little-endian bucket encoding:
//
//	average u32 | level u32 | codec u64 | hasher u64
//	entry count u32
//	per entry: timestamp i64 | hash len u16 | hash | message len u32 | message
//
// Every field is fixed-width or length-prefixed, so each decodable
// content has exactly one encoding; canonicality falls out of the
// format rather than a re-encode check.
type nativeCodec struct{}

const nativeHeaderSize = 4 + 4 + 8 + 8 + 4

func (nativeCodec) ID() uint64 { return CodecNative }

func (nativeCodec) Encode(prefix Prefix, entries []node.Node) ([]byte, error) {
	size := nativeHeaderSize
	for _, n := range entries {
		size += 8 + 2 + len(n.Hash) + 4 + len(n.Message)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))

	binary.Write(buf, binary.LittleEndian, prefix.Average)
	binary.Write(buf, binary.LittleEndian, prefix.Level)
	binary.Write(buf, binary.LittleEndian, prefix.Codec)
	binary.Write(buf, binary.LittleEndian, prefix.Hasher)
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)))

	for _, n := range entries {
		if len(n.Hash) > math.MaxUint16 {
			return nil, fmt.Errorf("entry hash too long: %d bytes", len(n.Hash))
		}
		if uint64(len(n.Message)) > math.MaxUint32 {
			return nil, fmt.Errorf("entry message too long: %d bytes", len(n.Message))
		}
		binary.Write(buf, binary.LittleEndian, uint64(n.Timestamp))
		binary.Write(buf, binary.LittleEndian, uint16(len(n.Hash)))
		buf.Write(n.Hash)
		binary.Write(buf, binary.LittleEndian, uint32(len(n.Message)))
		buf.Write(n.Message)
	}

	return buf.Bytes(), nil
}

func (nativeCodec) Decode(data []byte) (Prefix, []node.Node, error) {
	var prefix Prefix
	if len(data) < nativeHeaderSize {
		return prefix, nil, fmt.Errorf("%w: truncated header: %d bytes", ErrMalformedBlock, len(data))
	}

	prefix.Average = binary.LittleEndian.Uint32(data[0:4])
	prefix.Level = binary.LittleEndian.Uint32(data[4:8])
	prefix.Codec = binary.LittleEndian.Uint64(data[8:16])
	prefix.Hasher = binary.LittleEndian.Uint64(data[16:24])
	count := binary.LittleEndian.Uint32(data[24:28])

	if prefix.Average == 0 {
		return prefix, nil, fmt.Errorf("%w: zero average", ErrMalformedBlock)
	}

	pos := nativeHeaderSize
	entries := make([]node.Node, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(data)-pos < 8+2 {
			return prefix, nil, fmt.Errorf("%w: truncated entry %d", ErrMalformedBlock, i)
		}
		timestamp := int64(binary.LittleEndian.Uint64(data[pos : pos+8]))
		hashLen := int(binary.LittleEndian.Uint16(data[pos+8 : pos+10]))
		pos += 10
		if len(data)-pos < hashLen+4 {
			return prefix, nil, fmt.Errorf("%w: truncated entry %d hash", ErrMalformedBlock, i)
		}
		entryHash := data[pos : pos+hashLen]
		pos += hashLen
		msgLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if len(data)-pos < msgLen {
			return prefix, nil, fmt.Errorf("%w: truncated entry %d message", ErrMalformedBlock, i)
		}
		message := data[pos : pos+msgLen]
		pos += msgLen

		entries = append(entries, node.NewNode(timestamp, entryHash, message))
	}

	if pos != len(data) {
		return prefix, nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBlock, len(data)-pos)
	}
	if err := validateEntries(entries); err != nil {
		return prefix, nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	return prefix, entries, nil
}
