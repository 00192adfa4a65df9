package meshstorage

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// MaxLocatorAddrs bounds the addresses carried by one locator
const MaxLocatorAddrs = 32

var ErrInvalidLocator = errors.New("invalid content locator")

// Locator names a piece of content and a peer that holds it. It travels
// as the payload of a content-locator envelope.
type Locator struct {
	CID    cid.Cid
	PeerID peer.ID
	Addrs  []multiaddr.Multiaddr
}

// locatorWire is the binary form: [cid, peer id, [multiaddr...]]
type locatorWire struct {
	_      struct{} `cbor:",toarray"`
	CID    []byte
	PeerID []byte
	Addrs  [][]byte
}

// Encode returns the CBOR form of the locator
func (l Locator) Encode() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	w := locatorWire{
		CID:    l.CID.Bytes(),
		PeerID: []byte(l.PeerID),
		Addrs:  make([][]byte, 0, len(l.Addrs)),
	}
	for _, addr := range l.Addrs {
		w.Addrs = append(w.Addrs, addr.Bytes())
	}
	return protocol.Marshal(w)
}

// DecodeLocator parses and validates an encoded locator
func DecodeLocator(data []byte) (Locator, error) {
	var w locatorWire
	if err := protocol.Unmarshal(data, &w); err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}

	c, err := cid.Cast(w.CID)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: cid: %v", ErrInvalidLocator, err)
	}

	id, err := peer.IDFromBytes(w.PeerID)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: peer id: %v", ErrInvalidLocator, err)
	}

	if len(w.Addrs) > MaxLocatorAddrs {
		return Locator{}, fmt.Errorf("%w: %d addresses", ErrInvalidLocator, len(w.Addrs))
	}
	addrs := make([]multiaddr.Multiaddr, 0, len(w.Addrs))
	for _, raw := range w.Addrs {
		addr, err := multiaddr.NewMultiaddrBytes(raw)
		if err != nil {
			return Locator{}, fmt.Errorf("%w: addr: %v", ErrInvalidLocator, err)
		}
		addrs = append(addrs, addr)
	}

	l := Locator{CID: c, PeerID: id, Addrs: addrs}
	if err := l.Validate(); err != nil {
		return Locator{}, err
	}
	return l, nil
}

// Validate checks that the locator can be dialed
func (l Locator) Validate() error {
	if !l.CID.Defined() {
		return fmt.Errorf("%w: undefined cid", ErrInvalidLocator)
	}
	if err := l.PeerID.Validate(); err != nil {
		return fmt.Errorf("%w: peer id: %v", ErrInvalidLocator, err)
	}
	if len(l.Addrs) == 0 {
		return fmt.Errorf("%w: no addresses", ErrInvalidLocator)
	}
	if len(l.Addrs) > MaxLocatorAddrs {
		return fmt.Errorf("%w: %d addresses", ErrInvalidLocator, len(l.Addrs))
	}
	return nil
}

// AddrInfo returns the dial information for the holder
func (l Locator) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: l.PeerID, Addrs: l.Addrs}
}

func (l Locator) String() string {
	return fmt.Sprintf("Locator{cid=%s peer=%s addrs=%d}", l.CID, l.PeerID, len(l.Addrs))
}
