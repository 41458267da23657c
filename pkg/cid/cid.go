// Package cid defines the content identifier used to address bucket
// blocks: the codec and hasher identifiers from the bucket prefix plus
// the digest of the serialized bytes.
package cid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// CID identifies a stored block by content.
type CID struct {
	Codec  uint64
	Hasher uint64
	Digest []byte
}

// New builds a CID, copying the digest.
func New(codec, hasher uint64, digest []byte) CID {
	return CID{
		Codec:  codec,
		Hasher: hasher,
		Digest: append([]byte(nil), digest...),
	}
}

// Equal reports whether two CIDs identify the same block.
func (c CID) Equal(o CID) bool {
	return c.Codec == o.Codec && c.Hasher == o.Hasher && bytes.Equal(c.Digest, o.Digest)
}

// Key returns a compact string form usable as a map key. The layout is
// codec and hasher as varints followed by the raw digest bytes.
func (c CID) Key() string {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64+len(c.Digest))
	buf = binary.AppendUvarint(buf, c.Codec)
	buf = binary.AppendUvarint(buf, c.Hasher)
	buf = append(buf, c.Digest...)
	return string(buf)
}

// String renders the CID for logs and the CLI.
func (c CID) String() string {
	return fmt.Sprintf("%x-%x-%s", c.Codec, c.Hasher, hex.EncodeToString(c.Digest))
}

// Parse reads the String form back into a CID.
func Parse(s string) (CID, error) {
	var c CID
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return c, fmt.Errorf("malformed cid %q", s)
	}
	codec, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return c, fmt.Errorf("malformed cid codec %q: %w", parts[0], err)
	}
	hasher, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return c, fmt.Errorf("malformed cid hasher %q: %w", parts[1], err)
	}
	digest, err := hex.DecodeString(parts[2])
	if err != nil {
		return c, fmt.Errorf("malformed cid digest %q: %w", parts[2], err)
	}
	return CID{Codec: codec, Hasher: hasher, Digest: digest}, nil
}
