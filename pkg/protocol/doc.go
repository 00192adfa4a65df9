// Package protocol implements the chuck control-plane wire format.
//
// Two peers exchange a single Envelope: a topic tag plus an opaque payload
// whose structure belongs to the topic's handler. The receiver answers each
// envelope with a fixed ASCII status line.
//
// # Envelope Encoding
//
// The envelope body is a two element CBOR array [topic, payload] produced
// with Core Deterministic Encoding, so identical envelopes always encode to
// identical bytes. Decoding never panics; malformed input yields a
// *DecodeError.
//
// # Frame Format
//
// Every body is preceded by a 12-byte big-endian header:
//   - Magic (4 bytes): Protocol identifier (0x4348434B = "CHCK")
//   - Version (2 bytes): Protocol version (0x0100 = v1.0)
//   - Flags (2 bytes): Reserved
//   - Length (4 bytes): Body length
//
// FrameReader accumulates reads until a full frame is available, so a frame
// split across TCP segments or coalesced with the next one is still read
// exactly once. The legacy single-read mode (FramingSingleRead) trusts each
// read to return exactly one bare envelope.
//
// # Size Ceiling
//
// A frame never exceeds MaxFrameSize (64 KiB) including the header. This is
// a hard limit: payloads larger than MaxPayloadSize cannot be carried and
// NewEnvelope refuses them. Bulk data travels over the transfer sessions
// that the envelope describes, never over the control plane itself.
//
// # Status Lines
//
//	"200 OK"                     frame decoded and enqueued for dispatch
//	"500 Internal Server Error"  frame or envelope could not be decoded
//
// A status only confirms receipt; it says nothing about whether the topic
// handler later succeeded.
package protocol
