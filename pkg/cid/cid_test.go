package cid

import (
	"testing"
)

func TestCIDEqual(t *testing.T) {
	a := New(0x70, 0x1e, []byte{1, 2, 3})
	b := New(0x70, 0x1e, []byte{1, 2, 3})
	c := New(0x70, 0x1e, []byte{1, 2, 4})
	d := New(0x71, 0x1e, []byte{1, 2, 3})

	if !a.Equal(b) {
		t.Errorf("equal CIDs reported unequal")
	}
	if a.Equal(c) {
		t.Errorf("different digests reported equal")
	}
	if a.Equal(d) {
		t.Errorf("different codecs reported equal")
	}
}

func TestCIDKeyDistinct(t *testing.T) {
	a := New(0x70, 0x1e, []byte{1, 2, 3})
	b := New(0x70, 0x1e, []byte{1, 2, 4})
	if a.Key() == b.Key() {
		t.Errorf("distinct CIDs share a key")
	}
	if a.Key() != New(0x70, 0x1e, []byte{1, 2, 3}).Key() {
		t.Errorf("equal CIDs have different keys")
	}
}

func TestCIDStringParseRoundTrip(t *testing.T) {
	orig := New(0x71, 0x12, []byte{0xde, 0xad, 0xbe, 0xef})
	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("failed to parse %q: %v", orig.String(), err)
	}
	if !orig.Equal(parsed) {
		t.Errorf("round trip mismatch: %s != %s", orig, parsed)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "xx", "70-1e", "zz-1e-00", "70-zz-00", "70-1e-zz"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestNewCopiesDigest(t *testing.T) {
	digest := []byte{1, 2, 3}
	c := New(0x70, 0x1e, digest)
	digest[0] = 99
	if c.Digest[0] != 1 {
		t.Errorf("CID digest aliases caller memory")
	}
}
