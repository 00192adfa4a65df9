package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// FrameReader accumulates bytes from a stream until a complete frame is
// buffered. A single Read may carry part of a frame, exactly one frame, or
// several back-to-back frames.
type FrameReader struct {
	r     io.Reader
	buf   []byte
	n     int
	limit int
	err   error
}

// NewFrameReader creates a reader bounded to maxFrame bytes per frame.
// Values outside (HeaderSize, MaxFrameSize] fall back to MaxFrameSize.
func NewFrameReader(r io.Reader, maxFrame int) *FrameReader {
	if maxFrame <= HeaderSize || maxFrame > MaxFrameSize {
		maxFrame = MaxFrameSize
	}
	return &FrameReader{
		r:     r,
		buf:   make([]byte, maxFrame),
		limit: maxFrame,
	}
}

// Buffered returns the number of bytes held for the next frame
func (fr *FrameReader) Buffered() int {
	return fr.n
}

// Next returns the body of the next frame.
//
// It returns io.EOF when the stream ends on a frame boundary and
// io.ErrUnexpectedEOF when it ends mid-frame. A *DecodeError means the
// buffered bytes can never become a valid frame; they are dropped so the
// caller can reject and keep reading, or close when LostSync is true.
func (fr *FrameReader) Next() ([]byte, error) {
	for {
		if fr.n > 0 {
			body, size, err := fr.parse()
			if err != nil {
				fr.n = 0
				return nil, &DecodeError{Op: "frame", Err: err}
			}
			if size > 0 {
				out := bytes.Clone(body)
				copy(fr.buf, fr.buf[size:fr.n])
				fr.n -= size
				return out, nil
			}
		}

		if fr.err != nil {
			err := fr.err
			if errors.Is(err, io.EOF) && fr.n > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		m, err := fr.r.Read(fr.buf[fr.n:])
		fr.n += m
		if err != nil {
			fr.err = err
		}
	}
}

// parse returns the first complete frame in the buffer, or size 0 when
// more bytes are needed.
func (fr *FrameReader) parse() ([]byte, int, error) {
	buffered := fr.buf[:fr.n]

	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], ProtocolMagic)
	k := min(len(buffered), len(magic))
	if !bytes.Equal(buffered[:k], magic[:k]) {
		return nil, 0, ErrInvalidMagic
	}

	if len(buffered) < HeaderSize {
		return nil, 0, nil
	}

	var h Header
	if err := h.Decode(buffered); err != nil {
		return nil, 0, err
	}
	if err := h.Validate(fr.limit); err != nil {
		return nil, 0, err
	}

	size := HeaderSize + int(h.Length)
	if len(buffered) < size {
		return nil, 0, nil
	}

	return buffered[HeaderSize:size], size, nil
}
