package tree

import (
	"errors"
	"fmt"

	"github.com/ProllyDB/prolly/pkg/bucket"
	"github.com/ProllyDB/prolly/pkg/hash"
)

// DefaultAverageBucketSize is the expected number of entries per
// bucket at every level.
const DefaultAverageBucketSize = 30

var ErrInvalidConfig = errors.New("invalid configuration")

// Config fixes the shape parameters of a tree at creation time. All
// three fields are persisted in every bucket prefix; trees with
// different configs are never byte-compatible.
type Config struct {
	// AverageBucketSize tunes the boundary probability: roughly one in
	// AverageBucketSize entries closes a bucket.
	AverageBucketSize uint32

	// Codec identifies the bucket serialization format.
	Codec uint64

	// Hasher identifies the digest function for content addressing.
	Hasher uint64
}

// NewDefaultConfig returns the recommended configuration: average 30,
// native binary codec, xxh64 digests.
func NewDefaultConfig() *Config {
	return &Config{
		AverageBucketSize: DefaultAverageBucketSize,
		Codec:             bucket.CodecNative,
		Hasher:            hash.XXH64,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.AverageBucketSize == 0 {
		return fmt.Errorf("%w: average bucket size must be positive", ErrInvalidConfig)
	}
	if _, err := bucket.GetCodec(c.Codec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := hash.Get(c.Hasher); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Prefix returns the bucket prefix for the given level under this
// configuration.
func (c *Config) Prefix(level uint32) bucket.Prefix {
	return bucket.Prefix{
		Average: c.AverageBucketSize,
		Level:   level,
		Codec:   c.Codec,
		Hasher:  c.Hasher,
	}
}
