// Package meshstorage serves and fetches content named by a CID.
//
// A Node is a libp2p host (TCP plus QUIC) that keeps content in SQLite as
// 10+5 Reed-Solomon shards. A Locator, carried as the payload of a
// content-locator envelope, names a CID and a peer holding it; the
// receiving node dials that peer, pulls enough shards over the block
// protocol to rebuild the content, and checks the result against the CID
// before keeping it.
package meshstorage
