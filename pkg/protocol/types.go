package protocol

import (
	"fmt"
	"strings"
)

// Protocol constants
const (
	// Magic number for frame headers ('CHCK')
	ProtocolMagic = 0x4348434B

	// Protocol version
	ProtocolVersion = 0x0100 // v1.0

	// HeaderSize is the size of the fixed frame header
	HeaderSize = 12

	// MaxFrameSize is the hard ceiling on a single frame, header included.
	// A receiver never buffers more than this for one message.
	MaxFrameSize = 64 * 1024

	// envelopeOverhead bounds the CBOR framing around the payload:
	// array head (1) + topic (up to 3) + byte string head (up to 5).
	envelopeOverhead = 9

	// MaxPayloadSize is the largest payload an Envelope may carry
	MaxPayloadSize = MaxFrameSize - HeaderSize - envelopeOverhead
)

// Service defaults
const (
	DefaultServicePort   = 10001
	DefaultQueueCapacity = 32
)

// Status lines written back for every received frame
const (
	StatusAccepted = "200 OK"
	StatusRejected = "500 Internal Server Error"
)

// Topic identifies the semantic kind of an envelope payload
type Topic uint16

// Topics
const (
	TopicTransferTicket Topic = 0x0001
	TopicContentLocator Topic = 0x0002
)

var topicNames = map[Topic]string{
	TopicTransferTicket: "transfer-ticket",
	TopicContentLocator: "content-locator",
}

// String returns the wire name of the topic
func (t Topic) String() string {
	if name, ok := topicNames[t]; ok {
		return name
	}
	return fmt.Sprintf("topic(0x%04x)", uint16(t))
}

// Known reports whether t is one of the defined topics
func (t Topic) Known() bool {
	_, ok := topicNames[t]
	return ok
}

// ParseTopic resolves a topic by its wire name
func ParseTopic(name string) (Topic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for topic, n := range topicNames {
		if n == name {
			return topic, nil
		}
	}
	return 0, fmt.Errorf("unknown topic %q", name)
}

// Framing selects how frames are delimited on the socket
type Framing uint8

const (
	// FramingLengthPrefixed accumulates reads until a full header+body frame arrives
	FramingLengthPrefixed Framing = iota
	// FramingSingleRead treats each read as exactly one bare envelope
	FramingSingleRead
)

func (f Framing) String() string {
	switch f {
	case FramingLengthPrefixed:
		return "length-prefixed"
	case FramingSingleRead:
		return "single-read"
	default:
		return fmt.Sprintf("framing(%d)", uint8(f))
	}
}

// ParseFraming resolves a framing mode by name
func ParseFraming(name string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "length-prefixed", "framed":
		return FramingLengthPrefixed, nil
	case "single-read", "raw":
		return FramingSingleRead, nil
	default:
		return 0, fmt.Errorf("unknown framing %q", name)
	}
}

// IsAccepted reports whether a status line acknowledges the frame
func IsAccepted(status string) bool {
	return status == StatusAccepted
}
