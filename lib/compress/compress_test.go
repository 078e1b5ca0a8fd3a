// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"strings"
	"testing"
)

// roomLikePayload is repetitive JSON resembling a persisted room with
// many members, which every algorithm should shrink.
func roomLikePayload() []byte {
	var builder strings.Builder
	builder.WriteString(`{"room_id":"!abc:example.com","members":{`)
	for i := 0; i < 200; i++ {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(`"@user:example.com":{"membership":"join","display_name":null}`)
	}
	builder.WriteString(`}}`)
	return []byte(builder.String())
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	data := roomLikePayload()
	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			payload, used, err := Encode(data, tag)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if used != tag {
				t.Errorf("used tag = %v, want %v", used, tag)
			}
			if tag != None && len(payload) >= len(data) {
				t.Errorf("payload %d bytes not smaller than input %d", len(payload), len(data))
			}
			decoded, err := Decode(payload, used, len(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestEncodeFallsBackToNone(t *testing.T) {
	data := []byte(`{"session":null}`)
	for _, tag := range []Tag{LZ4, Zstd} {
		payload, used, err := Encode(data, tag)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tag, err)
		}
		if used != None {
			t.Errorf("Encode(%v) used %v for tiny input, want none", tag, used)
		}
		if !bytes.Equal(payload, data) {
			t.Errorf("Encode(%v) fallback payload differs from input", tag)
		}
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	data := roomLikePayload()
	payload, used, err := Encode(data, Zstd)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Decode(payload, used, len(data)-1); err == nil {
		t.Error("expected error for wrong recorded size")
	}
	if _, err := Decode([]byte("not zstd"), Zstd, 10); err == nil {
		t.Error("expected error for garbage zstd payload")
	}
	if _, err := Decode([]byte("abc"), None, 4); err == nil {
		t.Error("expected error for uncompressed size mismatch")
	}
	if _, err := Decode(nil, Tag(9), 0); err == nil {
		t.Error("expected error for unknown tag")
	}
}

func TestDecodeRejectsOversizedRecordedSize(t *testing.T) {
	data := roomLikePayload()
	for _, tag := range []Tag{None, LZ4, Zstd} {
		payload, used, err := Encode(data, tag)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tag, err)
		}
		for _, size := range []int{MaxDecodedSize + 1, 1 << 50} {
			if _, err := Decode(payload, used, size); err == nil {
				t.Errorf("Decode(%v, size=%d) succeeded, want error", used, size)
			}
		}
	}
	// The tag is stored separately from the payload, so a damaged row can
	// pair any payload with any tag.
	for _, tag := range []Tag{LZ4, Zstd} {
		if _, err := Decode(data, tag, 1<<50); err == nil {
			t.Errorf("Decode(raw, %v, 1<<50) succeeded, want error", tag)
		}
	}
}

func TestEncodeRejectsOversizedInput(t *testing.T) {
	if _, _, err := Encode(make([]byte, MaxDecodedSize+1), Zstd); err == nil {
		t.Error("Encode accepted input above MaxDecodedSize")
	}
}

func TestParseTag(t *testing.T) {
	tests := map[string]Tag{"none": None, "lz4": LZ4, "zstd": Zstd, "": Zstd}
	for name, want := range tests {
		got, err := ParseTag(name)
		if err != nil {
			t.Fatalf("ParseTag(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("ParseTag(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseTag("brotli"); err == nil {
		t.Error("expected error for unknown compression")
	}
}
