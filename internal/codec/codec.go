// Package codec wraps a dictionary-trained zstd encoder/decoder behind the
// stateless Compress/Decompress interface spec §4.1 requires. zstd is the
// concrete realization of the spec's "pretrained dictionary compressor":
// klauspost/compress/zstd supports WithEncoderDict/WithDecoderDicts
// directly, so the dictionary load is a one-time startup cost and every
// call after that is allocation-light.
package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"github.com/natak-mesh/relayd/internal/envelope"
	"github.com/natak-mesh/relayd/internal/xerr"
)

// MaxCompressed is the hard ceiling imposed by the overlay's effective MTU
// (spec §3/§4.1). A packet that cannot be compressed below this is dropped
// at ingress, never silently truncated.
const MaxCompressed = 350

// FormatVersion is prepended to every compressed payload so a future
// dictionary rotation cannot be silently misinterpreted by an older
// receiver (see SPEC_FULL.md's C1 supplement, grounded in the original
// implementation's packet_manager.py version byte).
const FormatVersion byte = 1

// headerLen is FormatVersion (1 byte) + OriginAppPort (2 bytes, big
// endian): the wire header every frame carries so the Ingress Router on
// the far side knows which bus group to re-inject into without any
// side-channel (see SPEC_FULL.md's C1 supplement).
const headerLen = 3

type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// New loads dict once (may be nil/empty for an undictioned codec, useful in
// tests) and builds a reusable encoder/decoder pair.
func New(dict []byte) (*Codec, error) {
	var encOpts []zstd.EOption
	var decOpts []zstd.DOption
	if len(dict) > 0 {
		encOpts = append(encOpts, zstd.WithEncoderDict(dict))
		decOpts = append(decOpts, zstd.WithDecoderDicts(dict))
	}
	encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.SpeedBestCompression))

	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, xerr.Wrap(xerr.ConfigInvalid, err, "init zstd encoder")
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		enc.Close()
		return nil, xerr.Wrap(xerr.ConfigInvalid, err, "init zstd decoder")
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Compress returns FormatVersion||originPort(u16 BE)||zstd(raw). It fails
// with CodecTooLarge (never truncates) if the result exceeds MaxCompressed.
func (c *Codec) Compress(raw []byte, originPort int) ([]byte, error) {
	out := make([]byte, headerLen, MaxCompressed+headerLen)
	out[0] = FormatVersion
	out[1] = byte(originPort >> 8)
	out[2] = byte(originPort)
	out = c.enc.EncodeAll(raw, out)
	if len(out) > MaxCompressed {
		return nil, xerr.New(xerr.CodecTooLarge, "compressed size %d exceeds max %d", len(out), MaxCompressed)
	}
	return out, nil
}

// Decompress is the inverse of Compress, returning the decompressed bytes
// and the origin UDP port carried in the header. A truncated/corrupt
// frame, or one tagged with an unknown FormatVersion, fails with
// CodecMalformed.
func (c *Codec) Decompress(compressed []byte) (raw []byte, originPort int, err error) {
	if len(compressed) < headerLen {
		return nil, 0, xerr.New(xerr.CodecMalformed, "frame shorter than header (%d bytes)", len(compressed))
	}
	if compressed[0] != FormatVersion {
		return nil, 0, xerr.New(xerr.CodecMalformed, "unknown format version %d", compressed[0])
	}
	originPort = int(compressed[1])<<8 | int(compressed[2])
	raw, derr := c.dec.DecodeAll(compressed[headerLen:], nil)
	if derr != nil {
		return nil, 0, xerr.Wrap(xerr.CodecMalformed, derr, fmt.Sprintf("decode %d bytes", len(compressed)))
	}
	return raw, originPort, nil
}

// ContentHash computes the 128-bit digest of compressed_bytes that dedup
// and the delivery ledger key off, per spec §3. blake2b's keyed-hash mode
// natively supports a 16-byte (128-bit) output, which is a cleaner fit than
// concatenating two independent 64-bit hashes.
func ContentHash(compressed []byte) envelope.ContentHash {
	h, _ := blake2b.New(16, nil) // fixed 16-byte size, no key: never errors
	h.Write(compressed)
	var out envelope.ContentHash
	copy(out[:], h.Sum(nil))
	return out
}
