package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		header *Header
	}{
		{
			name:   "standard header",
			header: NewHeader(1024),
		},
		{
			name: "header with flags",
			header: &Header{
				Magic:   ProtocolMagic,
				Version: ProtocolVersion,
				Flags:   0x0003,
				Length:  2048,
			},
		},
		{
			name:   "header with zero length",
			header: NewHeader(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := tt.header.Encode()

			if len(encoded) != HeaderSize {
				t.Errorf("Encode() length = %d, want %d", len(encoded), HeaderSize)
			}

			decoded := &Header{}
			if err := decoded.Decode(encoded); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if *decoded != *tt.header {
				t.Errorf("Decode() = %+v, want %+v", decoded, tt.header)
			}
		})
	}
}

func TestHeaderDecodeTooShort(t *testing.T) {
	shortBuf := make([]byte, HeaderSize-1)

	header := &Header{}
	err := header.Decode(shortBuf)
	if err != ErrInvalidHeader {
		t.Errorf("Decode() error = %v, want %v", err, ErrInvalidHeader)
	}
}

func TestHeaderValidate(t *testing.T) {
	tests := []struct {
		name    string
		header  *Header
		wantErr error
	}{
		{
			name:    "valid header",
			header:  NewHeader(100),
			wantErr: nil,
		},
		{
			name: "invalid magic",
			header: &Header{
				Magic:   0x12345678,
				Version: ProtocolVersion,
			},
			wantErr: ErrInvalidMagic,
		},
		{
			name: "invalid version",
			header: &Header{
				Magic:   ProtocolMagic,
				Version: 0x0200,
			},
			wantErr: ErrInvalidVersion,
		},
		{
			name:    "body at the limit",
			header:  NewHeader(MaxFrameSize - HeaderSize),
			wantErr: nil,
		},
		{
			name:    "body over the limit",
			header:  NewHeader(MaxFrameSize - HeaderSize + 1),
			wantErr: ErrFrameTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.Validate(MaxFrameSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteFrameSingleWrite(t *testing.T) {
	w := &countingWriter{}
	body := []byte("frame body")

	if err := WriteFrame(w, body); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	if w.writes != 1 {
		t.Errorf("WriteFrame() issued %d writes, want 1", w.writes)
	}

	if got := w.buf.Len(); got != HeaderSize+len(body) {
		t.Errorf("frame length = %d, want %d", got, HeaderSize+len(body))
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	err := WriteFrame(&countingWriter{}, make([]byte, MaxFrameSize))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("WriteFrame() error = %v, want %v", err, ErrFrameTooLarge)
	}
}

type countingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}
