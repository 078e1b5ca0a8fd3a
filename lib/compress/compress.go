// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress provides the record compression used by the SQLite
// state backend. Every stored record carries the [Tag] it was written
// with, so the algorithm can change between releases without
// rewriting existing databases.
//
// [Encode] falls back to [None] when the chosen algorithm does not
// shrink the input (small client-state records usually don't), and
// reports the tag actually used. [Decode] verifies the decompressed
// length against the recorded size, and refuses sizes above
// [MaxDecodedSize] before allocating.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm of a stored record. These
// values are persisted; changing them breaks existing databases.
type Tag uint8

const (
	// None stores the payload as-is.
	None Tag = 0

	// LZ4 is LZ4 block compression. Fastest decode, modest ratio.
	LZ4 Tag = 1

	// Zstd is zstd at the default level. Better ratio on JSON room
	// state, which is dominated by repeated keys and user IDs.
	Zstd Tag = 2
)

// String returns the configuration name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a configuration name ("none", "lz4", "zstd"). The
// empty string selects Zstd.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, or zstd)", name)
	}
}

// MaxDecodedSize bounds the uncompressed length of a single record.
// Encode rejects larger inputs and Decode rejects larger recorded sizes,
// so a damaged size column cannot drive a huge allocation.
const MaxDecodedSize = 64 << 20

// errIncompressible is returned internally when the compressed output
// is not smaller than the input.
var errIncompressible = errors.New("data is incompressible")

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent
// use via EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecodedSize))
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses data with the requested tag. Returns the payload
// and the tag actually applied, which is None when compression would
// not reduce the size.
func Encode(data []byte, tag Tag) ([]byte, Tag, error) {
	var (
		compressed []byte
		err        error
	)
	if len(data) > MaxDecodedSize {
		return nil, 0, fmt.Errorf("compress: record is %d bytes, limit is %d", len(data), MaxDecodedSize)
	}
	switch tag {
	case None:
		return data, None, nil
	case LZ4:
		compressed, err = encodeLZ4(data)
	case Zstd:
		compressed, err = encodeZstd(data)
	default:
		return nil, 0, fmt.Errorf("compress: unsupported tag %d", tag)
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, tag, nil
}

// Decode reverses Encode. size is the recorded uncompressed length; a
// mismatch is an error.
func Decode(payload []byte, tag Tag, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("compress: negative size %d", size)
	}
	if size > MaxDecodedSize {
		return nil, fmt.Errorf("compress: recorded size %d exceeds limit %d", size, MaxDecodedSize)
	}
	switch tag {
	case None:
		if len(payload) != size {
			return nil, fmt.Errorf("compress: uncompressed payload is %d bytes, expected %d", len(payload), size)
		}
		return payload, nil
	case LZ4:
		return decodeLZ4(payload, size)
	case Zstd:
		return decodeZstd(payload, size)
	default:
		return nil, fmt.Errorf("compress: unsupported tag %d", tag)
	}
}

func encodeLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decodeLZ4(payload []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(payload, destination)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4 decode: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("compress: lz4 decode: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func encodeZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decodeZstd(payload []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("compress: zstd decode: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("compress: zstd decode: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
