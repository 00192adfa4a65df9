package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		topic   Topic
		payload []byte
	}{
		{name: "transfer ticket", topic: TopicTransferTicket, payload: []byte("ticket-bytes")},
		{name: "content locator", topic: TopicContentLocator, payload: bytes.Repeat([]byte{0xAB}, 42)},
		{name: "nil payload", topic: TopicTransferTicket, payload: nil},
		{name: "empty payload", topic: TopicContentLocator, payload: []byte{}},
		{name: "unrecognized topic", topic: Topic(0x0999), payload: []byte{1, 2, 3}},
		{name: "maximum payload", topic: TopicContentLocator, payload: bytes.Repeat([]byte{0x5A}, MaxPayloadSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.topic, tt.payload)
			require.NoError(t, err)

			encoded, err := env.Encode()
			require.NoError(t, err)

			decoded, err := DecodeEnvelope(encoded)
			require.NoError(t, err)

			assert.True(t, env.Equal(decoded), "decoded %s != original %s", decoded, env)
			assert.Equal(t, tt.topic, decoded.Topic())
			assert.Equal(t, len(tt.payload), decoded.Size())
		})
	}
}

func TestEnvelopeEncodingIsDeterministic(t *testing.T) {
	env, err := NewEnvelope(TopicContentLocator, []byte("same bytes"))
	require.NoError(t, err)

	first, err := env.Encode()
	require.NoError(t, err)
	second, err := env.Encode()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnvelopeIsImmutable(t *testing.T) {
	payload := []byte("original")
	env, err := NewEnvelope(TopicTransferTicket, payload)
	require.NoError(t, err)

	payload[0] = 'X'
	assert.Equal(t, []byte("original"), env.Payload())

	out := env.Payload()
	out[0] = 'Y'
	assert.Equal(t, []byte("original"), env.Payload())
}

func TestEnvelopeEquality(t *testing.T) {
	a, _ := NewEnvelope(TopicTransferTicket, []byte("abc"))
	b, _ := NewEnvelope(TopicTransferTicket, []byte("abc"))
	c, _ := NewEnvelope(TopicContentLocator, []byte("abc"))
	d, _ := NewEnvelope(TopicTransferTicket, []byte("abd"))
	empty, _ := NewEnvelope(TopicTransferTicket, nil)
	zeroLen, _ := NewEnvelope(TopicTransferTicket, []byte{})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.True(t, empty.Equal(zeroLen))
}

func TestNewEnvelopeRejectsOversizedPayload(t *testing.T) {
	_, err := NewEnvelope(TopicTransferTicket, make([]byte, MaxPayloadSize+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPayloadTooLarge))
}

func TestDecodeEnvelopeRejectsTruncation(t *testing.T) {
	env, err := NewEnvelope(TopicContentLocator, bytes.Repeat([]byte{0x01}, 42))
	require.NoError(t, err)
	encoded, err := env.Encode()
	require.NoError(t, err)

	for cut := 0; cut < len(encoded); cut++ {
		_, err := DecodeEnvelope(encoded[:cut])
		require.Error(t, err, "prefix of %d bytes decoded", cut)

		var decErr *DecodeError
		assert.True(t, errors.As(err, &decErr), "prefix %d: want *DecodeError, got %T", cut, err)
	}
}

func TestDecodeEnvelopeRejectsMalformedInput(t *testing.T) {
	valid, _ := NewEnvelope(TopicTransferTicket, []byte("ok"))
	encoded, _ := valid.Encode()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: nil},
		{name: "single byte", input: encoded[:1]},
		{name: "ten junk bytes", input: []byte("not-cbor!!")},
		{name: "trailing garbage", input: append(bytes.Clone(encoded), 0x00)},
		{name: "map instead of array", input: []byte{0xA0}},
		{name: "three element array", input: []byte{0x83, 0x01, 0x40, 0x01}},
		{name: "negative topic", input: []byte{0x82, 0x20, 0x40}},
		{name: "indefinite length array", input: []byte{0x9F, 0x01, 0x40, 0xFF}},
		{name: "topic overflow", input: []byte{0x82, 0x1A, 0x00, 0x01, 0x00, 0x00, 0x40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := DecodeEnvelope(tt.input)
				assert.Error(t, err)

				var decErr *DecodeError
				assert.True(t, errors.As(err, &decErr))
			})
		})
	}
}

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "transfer-ticket", TopicTransferTicket.String())
	assert.Equal(t, "content-locator", TopicContentLocator.String())
	assert.Equal(t, "topic(0x0042)", Topic(0x42).String())
	assert.False(t, Topic(0x42).Known())

	topic, err := ParseTopic(" Content-Locator ")
	require.NoError(t, err)
	assert.Equal(t, TopicContentLocator, topic)

	_, err = ParseTopic("gossip")
	assert.Error(t, err)
}
