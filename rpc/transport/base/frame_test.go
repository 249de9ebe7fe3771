package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/dRelay/rpc/common"
)

func header(length uint32) []byte {
	h := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(h, length)
	return h
}

func TestFrameRoundTrip(t *testing.T) {
	random := make([]byte, DefaultMaxFrameSize)
	rand.New(rand.NewSource(1)).Read(random)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"select aid", []byte{0x00, 0xA4, 0x04, 0x00}},
		{"status word", []byte{0x90, 0x00}},
		{"max size", random},
	}

	codec := FrameCodec{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.payload)
			if err != nil {
				t.Fatalf("EncodeFrame failed: %v", err)
			}
			if len(frame) != HeaderSize+len(tt.payload) {
				t.Fatalf("expected frame of %d bytes, got %d", HeaderSize+len(tt.payload), len(frame))
			}

			var written bytes.Buffer
			if err := WriteFrame(&written, tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if !bytes.Equal(written.Bytes(), frame) {
				t.Fatal("WriteFrame and EncodeFrame disagree")
			}

			got, err := codec.ReadFrame(bytes.NewReader(frame))
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if got == nil || !bytes.Equal(got, tt.payload) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameEncodingIsBigEndian(t *testing.T) {
	frame, _ := EncodeFrame(make([]byte, 0x0102))
	if !bytes.Equal(frame[:HeaderSize], []byte{0x00, 0x00, 0x01, 0x02}) {
		t.Fatalf("unexpected header % X", frame[:HeaderSize])
	}
}

func TestFrameSequenceOnOneStream(t *testing.T) {
	var stream bytes.Buffer
	payloads := [][]byte{{0x01}, {}, {0x02, 0x03}}
	for _, p := range payloads {
		if err := WriteFrame(&stream, p); err != nil {
			t.Fatal(err)
		}
	}

	codec := FrameCodec{}
	for i, want := range payloads {
		got, err := codec.ReadFrame(&stream)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got % X, want % X", i, got, want)
		}
	}
}

func TestFrameOversizeRejection(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 16)
	stream := bytes.NewReader(append(header(DefaultMaxFrameSize+1), body...))

	resp, err := FrameCodec{}.ReadFrame(stream)
	if resp != nil {
		t.Fatalf("expected no payload, got %d bytes", len(resp))
	}
	if !errors.Is(err, common.ErrOversizedFrame) {
		t.Fatalf("expected ErrOversizedFrame, got %v", err)
	}
	if stream.Len() != len(body) {
		t.Fatalf("oversized frame consumed %d body bytes", len(body)-stream.Len())
	}
}

func TestFrameCaps(t *testing.T) {
	frame, _ := EncodeFrame(make([]byte, DefaultMaxFrameSize+1))

	if _, err := (FrameCodec{}).ReadFrame(bytes.NewReader(frame)); !errors.Is(err, common.ErrOversizedFrame) {
		t.Fatalf("default cap should reject %d bytes, got %v", DefaultMaxFrameSize+1, err)
	}

	large := FrameCodec{MaxFrameSize: LargeMaxFrameSize}
	got, err := large.ReadFrame(bytes.NewReader(frame))
	if err != nil || len(got) != int(DefaultMaxFrameSize+1) {
		t.Fatalf("large cap should accept %d bytes, got %d bytes, %v", DefaultMaxFrameSize+1, len(got), err)
	}

	if _, err := large.ReadFrame(bytes.NewReader(header(LargeMaxFrameSize + 1))); !errors.Is(err, common.ErrOversizedFrame) {
		t.Fatalf("large cap should reject %d bytes, got %v", LargeMaxFrameSize+1, err)
	}
}

func TestFrameTruncatedHeader(t *testing.T) {
	for _, stream := range [][]byte{{}, {0x00, 0x00}} {
		_, err := FrameCodec{}.ReadFrame(bytes.NewReader(stream))
		if !errors.Is(err, common.ErrTruncatedHeader) {
			t.Fatalf("stream of %d bytes: expected ErrTruncatedHeader, got %v", len(stream), err)
		}
	}
}

func TestFrameTruncatedBody(t *testing.T) {
	stream := append(header(10), 0x01, 0x02, 0x03)

	t.Run("strict", func(t *testing.T) {
		got, err := FrameCodec{}.ReadFrame(bytes.NewReader(stream))
		if got != nil {
			t.Fatalf("strict codec returned %d bytes", len(got))
		}
		if !errors.Is(err, common.ErrTruncatedBody) {
			t.Fatalf("expected ErrTruncatedBody, got %v", err)
		}
	})

	t.Run("partial", func(t *testing.T) {
		got, err := FrameCodec{AllowPartial: true}.ReadFrame(bytes.NewReader(stream))
		if !errors.Is(err, common.ErrTruncatedBody) {
			t.Fatalf("expected ErrTruncatedBody, got %v", err)
		}
		if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
			t.Fatalf("expected the 3 received bytes, got % X", got)
		}
	})

	t.Run("partial without body bytes", func(t *testing.T) {
		got, err := FrameCodec{AllowPartial: true}.ReadFrame(bytes.NewReader(header(10)))
		if got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
		if !errors.Is(err, common.ErrTruncatedBody) {
			t.Fatalf("expected ErrTruncatedBody, got %v", err)
		}
	})
}
