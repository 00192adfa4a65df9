package transfer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/ZentaChain/chuck/pkg/crypto"
	"github.com/ZentaChain/chuck/pkg/protocol"
)

// TokenSize is the length of the random ticket token
const TokenSize = 16

var ErrInvalidTicket = errors.New("invalid ticket")

// Ticket authorizes one receiver to pull a blob directly from a Sender.
// It travels as the payload of a transfer-ticket envelope.
type Ticket struct {
	_     struct{} `cbor:",toarray"`
	Addr  string
	Token [TokenSize]byte
	Name  string
	Size  uint64
	Hash  [crypto.HashSize]byte
}

// Encode returns the CBOR form of the ticket
func (t Ticket) Encode() ([]byte, error) {
	return protocol.Marshal(t)
}

// DecodeTicket parses and validates an encoded ticket
func DecodeTicket(data []byte) (Ticket, error) {
	var t Ticket
	if err := protocol.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if err := t.Validate(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Validate checks that the ticket can be redeemed
func (t Ticket) Validate() error {
	if _, _, err := net.SplitHostPort(t.Addr); err != nil {
		return fmt.Errorf("%w: addr %q: %v", ErrInvalidTicket, t.Addr, err)
	}
	if t.Token == ([TokenSize]byte{}) {
		return fmt.Errorf("%w: empty token", ErrInvalidTicket)
	}
	if !validName(t.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidTicket, t.Name)
	}
	return nil
}

func (t Ticket) String() string {
	return fmt.Sprintf("Ticket{%s %q %dB token=%s}", t.Addr, t.Name, t.Size, hex.EncodeToString(t.Token[:4]))
}

// validName accepts a bare file name only
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
