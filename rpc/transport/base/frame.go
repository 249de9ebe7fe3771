package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"

	"github.com/ValentinKolb/dRelay/rpc/common"
)

const (
	// HeaderSize is the size of the length prefix of every frame
	HeaderSize = 4

	DefaultMaxFrameSize = common.DefaultMaxFrameSize
	LargeMaxFrameSize   = common.LargeMaxFrameSize
)

// EncodeFrame returns the frame for payload with the format:
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func EncodeFrame(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > math.MaxUint32 {
		return nil, common.NewError(common.RetCOversizedFrame, fmt.Sprintf("payload of %d bytes does not fit a frame", len(payload)))
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WriteFrame writes the frame for payload to w. Header and payload go out in a single
// vectored write if w supports it, without copying the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return common.NewError(common.RetCOversizedFrame, fmt.Sprintf("payload of %d bytes does not fit a frame", len(payload)))
	}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	b := net.Buffers{header[:], payload}
	if _, err := b.WriteTo(w); err != nil {
		return common.WrapError(common.RetCIO, "write frame", err)
	}
	return nil
}

// FrameCodec reads frames with a cap on the declared length.
//
// Policy for a body that ends early: by default the frame fails with ErrTruncatedBody and no
// bytes are returned. With AllowPartial the bytes read so far are returned together with the
// ErrTruncatedBody error, so the caller can decide to deliver them. A body that ends before
// its first byte returns nil in both modes.
type FrameCodec struct {
	// MaxFrameSize is the largest accepted declared length, 0 means DefaultMaxFrameSize
	MaxFrameSize uint32
	AllowPartial bool
}

// NewFrameCodec creates the codec configured by the client config
func NewFrameCodec(config common.ClientConfig) FrameCodec {
	return FrameCodec{MaxFrameSize: config.MaxFrameSize, AllowPartial: config.AllowPartial}
}

// Limit returns the effective frame cap
func (c FrameCodec) Limit() uint32 {
	if c.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// ReadFrame reads one frame from r and returns its payload. A zero length frame returns an
// empty, non-nil slice. An oversized declared length fails before any body byte is read;
// the stream is out of sync afterward and must be discarded.
func (c FrameCodec) ReadFrame(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		if isEndOfStream(err) {
			return nil, common.WrapError(common.RetCTruncatedHeader,
				fmt.Sprintf("stream ended after %d of %d header bytes", n, HeaderSize), err)
		}
		return nil, common.WrapError(common.RetCIO, "read frame header", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if limit := c.Limit(); length > limit {
		return nil, common.NewError(common.RetCOversizedFrame,
			fmt.Sprintf("declared length %d exceeds limit %d", length, limit))
	}

	if length == 0 {
		return []byte{}, nil
	}

	body := make([]byte, length)
	n, err := io.ReadFull(r, body)
	if err != nil {
		if isEndOfStream(err) {
			truncErr := common.WrapError(common.RetCTruncatedBody,
				fmt.Sprintf("stream ended after %d of %d body bytes", n, length), err)
			// a body that ended before its first byte has nothing to deliver
			if c.AllowPartial && n > 0 {
				return body[:n], truncErr
			}
			return nil, truncErr
		}
		return nil, common.WrapError(common.RetCIO, "read frame body", err)
	}

	return body, nil
}

// isEndOfStream reports whether err means the peer closed the stream
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
