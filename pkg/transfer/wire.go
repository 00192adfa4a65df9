package transfer

import (
	"encoding/binary"
	"io"
)

// Session wire format, after the receiver dials the ticket address:
//
//	receiver -> sender   token (16 bytes)
//	sender   -> receiver status (1 byte); on statusOK: size (8 bytes BE) + data
//	receiver -> sender   ack (1 byte)
const (
	statusOK      byte = 0x00
	statusUnknown byte = 0x01

	ackVerified byte = 0x00
	ackCorrupt  byte = 0x01
)

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
