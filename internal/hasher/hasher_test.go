package hasher

import (
	"bytes"
	"testing"
)

func TestContentHash_Lengths(t *testing.T) {
	data := []byte("compressed bytes")
	full := ContentHash(data, 0)
	if len(full) != DigestLen {
		t.Fatalf("full digest length: got %d", len(full))
	}
	if short := ContentHash(data, 8); short != full[:8] {
		t.Errorf("truncated digest: got %q, want %q", short, full[:8])
	}
	if ContentHash(data, 99) != full {
		t.Error("oversized length should return full digest")
	}
}

func TestContentHashReader_MatchesBytes(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB, 0xCD}, 10_000)
	got, err := ContentHashReader(bytes.NewReader(data), 0)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	if want := ContentHash(data, 0); got != want {
		t.Errorf("reader digest %q != bytes digest %q", got, want)
	}
	if ContentHash([]byte("a"), 0) == ContentHash([]byte("b"), 0) {
		t.Error("distinct inputs collide")
	}
}
