package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidMagic   = errors.New("invalid protocol magic")
	ErrInvalidVersion = errors.New("unsupported protocol version")
	ErrInvalidHeader  = errors.New("invalid header")
	ErrFrameTooLarge  = errors.New("frame exceeds size limit")
)

// Header is the fixed frame header preceding every envelope body
type Header struct {
	Magic   uint32 // Magic number (0x4348434B)
	Version uint16 // Protocol version
	Flags   uint16 // Reserved for future use
	Length  uint32 // Body length
}

// NewHeader returns a header for a body of the given length
func NewHeader(length int) *Header {
	return &Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Length:  uint32(length),
	}
}

// Encode encodes the header to bytes
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.Length)

	return buf
}

// Decode decodes the header from bytes
func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrInvalidHeader
	}

	h.Magic = binary.BigEndian.Uint32(buf[0:4])
	h.Version = binary.BigEndian.Uint16(buf[4:6])
	h.Flags = binary.BigEndian.Uint16(buf[6:8])
	h.Length = binary.BigEndian.Uint32(buf[8:12])

	return nil
}

// Validate validates the header against a frame size limit
func (h *Header) Validate(maxFrame int) error {
	if h.Magic != ProtocolMagic {
		return ErrInvalidMagic
	}

	if h.Version != ProtocolVersion {
		return ErrInvalidVersion
	}

	if int64(h.Length)+HeaderSize > int64(maxFrame) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, h.Length)
	}

	return nil
}

// AppendFrame returns header+body as one contiguous buffer
func AppendFrame(dst []byte, body []byte) []byte {
	dst = append(dst, NewHeader(len(body)).Encode()...)
	return append(dst, body...)
}

// WriteFrame writes a complete frame with a single Write call
func WriteFrame(w io.Writer, body []byte) error {
	if len(body)+HeaderSize > MaxFrameSize {
		return ErrFrameTooLarge
	}
	_, err := w.Write(AppendFrame(make([]byte, 0, HeaderSize+len(body)), body))
	return err
}

// EncodeFrame encodes env and wraps it in a frame
func EncodeFrame(env Envelope) ([]byte, error) {
	body, err := env.Encode()
	if err != nil {
		return nil, err
	}
	if len(body)+HeaderSize > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	return AppendFrame(make([]byte, 0, HeaderSize+len(body)), body), nil
}
