package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrPayloadTooLarge = errors.New("payload exceeds frame ceiling")
	ErrEmptyEnvelope   = errors.New("empty envelope bytes")
)

// DecodeError reports bytes that do not form a valid frame or envelope.
// The receiver answers with StatusRejected and, unless LostSync is true,
// keeps reading the stream.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// LostSync reports whether the stream position can no longer be trusted.
// A header carrying the magic but an unsupported version or an oversized
// length is followed by a body of unknown extent.
func (e *DecodeError) LostSync() bool {
	return errors.Is(e.Err, ErrFrameTooLarge) ||
		errors.Is(e.Err, ErrInvalidVersion) ||
		errors.Is(e.Err, ErrInvalidHeader)
}

// Envelope is the (topic, payload) unit exchanged on the control plane.
// It is immutable once constructed.
type Envelope struct {
	topic   Topic
	payload []byte
}

// envelopeWire is the on-wire shape: a two element CBOR array
type envelopeWire struct {
	_       struct{} `cbor:",toarray"`
	Topic   Topic
	Payload []byte
}

// NewEnvelope creates an envelope holding a private copy of payload
func NewEnvelope(topic Topic, payload []byte) (Envelope, error) {
	if len(payload) > MaxPayloadSize {
		return Envelope{}, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	return Envelope{topic: topic, payload: bytes.Clone(payload)}, nil
}

// Topic returns the envelope topic
func (e Envelope) Topic() Topic {
	return e.topic
}

// Payload returns a copy of the payload bytes
func (e Envelope) Payload() []byte {
	return bytes.Clone(e.payload)
}

// Size returns the payload length
func (e Envelope) Size() int {
	return len(e.payload)
}

// Equal reports structural equality
func (e Envelope) Equal(other Envelope) bool {
	return e.topic == other.topic && bytes.Equal(e.payload, other.payload)
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{topic=%s, payload=%dB}", e.topic, len(e.payload))
}

// Encode encodes the envelope body (without frame header)
func (e Envelope) Encode() ([]byte, error) {
	return Marshal(envelopeWire{Topic: e.topic, Payload: e.payload})
}

// DecodeEnvelope decodes an envelope body. Any truncated, trailing or
// mistyped input yields a *DecodeError.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) == 0 {
		return Envelope{}, &DecodeError{Op: "envelope", Err: ErrEmptyEnvelope}
	}

	var w envelopeWire
	if err := Unmarshal(buf, &w); err != nil {
		return Envelope{}, &DecodeError{Op: "envelope", Err: err}
	}

	if len(w.Payload) > MaxPayloadSize {
		return Envelope{}, &DecodeError{Op: "envelope", Err: ErrPayloadTooLarge}
	}

	return Envelope{topic: w.Topic, payload: w.Payload}, nil
}
