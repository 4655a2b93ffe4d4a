package codec_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/natak-mesh/relayd/internal/codec"
	"github.com/natak-mesh/relayd/internal/xerr"
)

func TestRoundTrip(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for _, raw := range [][]byte{
		[]byte("hello cot packet"),
		bytes.Repeat([]byte("x"), 200),
		{},
	} {
		compressed, err := c.Compress(raw, 17012)
		if err != nil {
			t.Fatalf("compress(%q): %v", raw, err)
		}
		got, port, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("round trip mismatch: got %q want %q", got, raw)
		}
		if port != 17012 {
			t.Fatalf("origin port mismatch: got %d want 17012", port)
		}
	}
}

func TestTooLarge(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// incompressible pseudo-random payload larger than MaxCompressed
	raw := make([]byte, 10_000)
	rand.New(rand.NewSource(1)).Read(raw)
	_, err = c.Compress(raw, 17012)
	if err == nil {
		t.Fatal("expected CodecTooLarge, got nil")
	}
	if !xerr.Is(err, xerr.CodecTooLarge) {
		t.Fatalf("expected CodecTooLarge, got %v", err)
	}
}

func TestMalformed(t *testing.T) {
	c, err := codec.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	_, _, err = c.Decompress([]byte{0xFF, 1, 2, 3})
	if !xerr.Is(err, xerr.CodecMalformed) {
		t.Fatalf("expected CodecMalformed, got %v", err)
	}

	_, _, err = c.Decompress(nil)
	if !xerr.Is(err, xerr.CodecMalformed) {
		t.Fatalf("expected CodecMalformed for empty frame, got %v", err)
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := codec.ContentHash([]byte("abc"))
	b := codec.ContentHash([]byte("abc"))
	if a != b {
		t.Fatal("ContentHash not deterministic")
	}
	c := codec.ContentHash([]byte("abd"))
	if a == c {
		t.Fatal("ContentHash collided on different input")
	}
}
