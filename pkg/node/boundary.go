package node

import (
	"encoding/binary"
	"math"
)

// levelSalt is the multiplier mixed into the boundary value per level
// so a level-0 boundary is not automatically a boundary at level 1.
// Level 0 applies no salt. Fixed for wire compatibility; changing it
// changes every tree shape.
const levelSalt = 0x9E3779B1

// BoundaryFunc reports whether an entry closes the bucket it lands in.
type BoundaryFunc func(Node) bool

// NewBoundary returns the deterministic boundary predicate for the
// given average bucket size and tree level. Approximately 1/average of
// entries satisfy it. The decision is a pure function of the entry's
// hash bytes: the first four bytes read big-endian, salted by level.
func NewBoundary(average, level uint32) BoundaryFunc {
	threshold := math.MaxUint32 / average
	salt := level * levelSalt
	return func(n Node) bool {
		if len(n.Hash) < MinHashLen {
			return false
		}
		v := binary.BigEndian.Uint32(n.Hash[:MinHashLen]) ^ salt
		return v < threshold
	}
}
