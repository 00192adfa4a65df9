package meshstorage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	mh "github.com/multiformats/go-multihash"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/network"
)

// MaxContentSize bounds what a node will fetch for one locator
const MaxContentSize = 1 << 30

var (
	ErrCIDMismatch     = errors.New("content does not match its cid")
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Node is a libp2p host that serves and fetches erasure coded content
type Node struct {
	host    host.Host
	storage *LocalStorage
	encoder *ErasureEncoder
	rpc     *RPCClient
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NodeConfig contains configuration for creating a node
type NodeConfig struct {
	Port       int    // TCP port; QUIC listens on Port+1. Zero picks free ports.
	ListenHost string // defaults to 0.0.0.0
	DataDir    string
	PrivateKey crypto.PrivKey // Optional: provide your own key
	Retention  time.Duration  // drop content stored longer ago; zero keeps everything
}

// NewNode creates a node and starts serving the block protocol
func NewNode(ctx context.Context, config *NodeConfig) (*Node, error) {
	var priv crypto.PrivKey
	var err error

	if config.PrivateKey != nil {
		priv = config.PrivateKey
	} else {
		priv, _, err = crypto.GenerateEd25519Key(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key pair: %w", err)
		}
	}

	listenHost := config.ListenHost
	if listenHost == "" {
		listenHost = "0.0.0.0"
	}
	quicPort := 0
	if config.Port != 0 {
		quicPort = config.Port + 1
	}

	h, err := libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(
			fmt.Sprintf("/ip4/%s/tcp/%d", listenHost, config.Port),
			fmt.Sprintf("/ip4/%s/udp/%d/quic-v1", listenHost, quicPort),
		),
		libp2p.DefaultTransports,
		libp2p.DefaultMuxers,
		libp2p.DefaultSecurity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	storage, err := NewLocalStorage(config.DataDir)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	encoder, err := NewErasureEncoder()
	if err != nil {
		storage.Close()
		h.Close()
		return nil, err
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	n := &Node{
		host:    h,
		storage: storage,
		encoder: encoder,
		rpc:     NewRPCClient(h),
		ctx:     nodeCtx,
		cancel:  cancel,
	}
	NewRPCHandler(storage).SetupStreamHandler(h)

	if config.Retention > 0 {
		n.wg.Add(1)
		go n.cleanupLoop(config.Retention)
	}

	log.Info().
		Str("peer_id", h.ID().String()).
		Strs("addrs", addrStrings(h.Addrs())).
		Str("store", storage.Path()).
		Dur("retention", config.Retention).
		Msg("content node started")

	return n, nil
}

// ID returns this node's peer ID
func (n *Node) ID() peer.ID {
	return n.host.ID()
}

// Addrs returns this node's listen addresses
func (n *Node) Addrs() []multiaddr.Multiaddr {
	return n.host.Addrs()
}

// Host returns the libp2p host
func (n *Node) Host() host.Host {
	return n.host
}

// Storage returns the local storage
func (n *Node) Storage() *LocalStorage {
	return n.storage
}

func addrStrings(addrs []multiaddr.Multiaddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// ContentID computes the CIDv1 (raw, sha2-256) of data
func ContentID(data []byte) (cid.Cid, error) {
	hash, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash content: %w", err)
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}

// Add shards data and stores it locally, returning its CID
func (n *Node) Add(data []byte) (cid.Cid, error) {
	c, err := ContentID(data)
	if err != nil {
		return cid.Undef, err
	}
	if err := n.store(c, data); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

// AddFile reads path and adds its contents
func (n *Node) AddFile(path string) (cid.Cid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return n.Add(data)
}

func (n *Node) store(c cid.Cid, data []byte) error {
	encoded, err := n.encoder.Encode(data)
	if err != nil {
		return err
	}

	m := Manifest{
		CID:          c.String(),
		Size:         encoded.OriginalSize,
		ShardSize:    encoded.ShardSize,
		DataShards:   DataShards,
		ParityShards: ParityShards,
	}
	return n.storage.Put(m, encoded.Shards)
}

// Has reports whether the manifest for c is stored locally
func (n *Node) Has(c cid.Cid) bool {
	_, err := n.storage.GetManifest(c.String())
	return err == nil
}

// Get reconstructs locally stored content
func (n *Node) Get(c cid.Cid) ([]byte, error) {
	m, err := n.storage.GetManifest(c.String())
	if err != nil {
		return nil, err
	}
	shards, err := n.storage.GetShards(c.String())
	if err != nil {
		return nil, err
	}
	return n.encoder.Decode(&EncodedData{Shards: shards, ShardSize: m.ShardSize, OriginalSize: m.Size})
}

// Locator returns a locator pointing at this node for c
func (n *Node) Locator(c cid.Cid) (Locator, error) {
	if !n.Has(c) {
		return Locator{}, fmt.Errorf("%w: %s", ErrNotFound, c)
	}

	addrs := n.Addrs()
	if len(addrs) > MaxLocatorAddrs {
		addrs = addrs[:MaxLocatorAddrs]
	}
	l := Locator{CID: c, PeerID: n.ID(), Addrs: addrs}
	return l, l.Validate()
}

// Fetch retrieves the content named by loc from its holder, verifies it
// against the CID and stores a local copy. Data shards are requested
// first; parity shards only replace the ones that could not be fetched.
func (n *Node) Fetch(ctx context.Context, loc Locator) ([]byte, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	if err := n.host.Connect(ctx, loc.AddrInfo()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", loc.PeerID.ShortString(), err)
	}
	if err := n.rpc.Ping(ctx, loc.PeerID); err != nil {
		return nil, fmt.Errorf("peer %s does not serve blocks: %w", loc.PeerID.ShortString(), err)
	}

	key := loc.CID.String()
	m, err := n.rpc.GetManifest(ctx, loc.PeerID, key)
	if err != nil {
		return nil, err
	}
	if err := checkManifest(m, key); err != nil {
		return nil, err
	}

	shards := make([][]byte, TotalShards)
	have := 0
	for i := 0; i < TotalShards && have < DataShards; i++ {
		shard, err := n.rpc.GetShard(ctx, loc.PeerID, key, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().Err(err).Int("shard", i).Str("cid", key).Msg("shard unavailable")
			continue
		}
		if len(shard) != m.ShardSize {
			log.Debug().Int("shard", i).Int("size", len(shard)).Msg("discarding shard of wrong size")
			continue
		}
		shards[i] = shard
		have++
	}

	data, err := n.encoder.Decode(&EncodedData{Shards: shards, ShardSize: m.ShardSize, OriginalSize: m.Size})
	if err != nil {
		return nil, err
	}

	got, err := ContentID(data)
	if err != nil {
		return nil, err
	}
	if !got.Equals(loc.CID) {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrCIDMismatch, loc.CID, got)
	}

	if err := n.store(loc.CID, data); err != nil {
		return nil, err
	}
	return data, nil
}

func checkManifest(m Manifest, key string) error {
	switch {
	case m.CID != key:
		return fmt.Errorf("%w: cid %s", ErrInvalidManifest, m.CID)
	case m.DataShards != DataShards || m.ParityShards != ParityShards:
		return fmt.Errorf("%w: %d+%d shards", ErrInvalidManifest, m.DataShards, m.ParityShards)
	case m.Size <= 0 || m.Size > MaxContentSize:
		return fmt.Errorf("%w: size %d", ErrInvalidManifest, m.Size)
	case m.ShardSize <= 0 || m.ShardSize*DataShards < m.Size:
		return fmt.Errorf("%w: shard size %d", ErrInvalidManifest, m.ShardSize)
	}
	return nil
}

// Handler adapts the node to the content-locator topic. Fetched content
// is written to outDir/<cid> when outDir is set.
func (n *Node) Handler(outDir string) network.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		loc, err := DecodeLocator(payload)
		if err != nil {
			return err
		}

		log.Info().Str("locator", loc.String()).Msg("handling locator")

		start := time.Now()
		data, err := n.Fetch(ctx, loc)
		if err != nil {
			return err
		}

		event := log.Info().
			Str("cid", loc.CID.String()).
			Int("bytes", len(data)).
			Dur("duration", time.Since(start))

		if outDir != "" {
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			path := filepath.Join(outDir, loc.CID.String())
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			event = event.Str("path", path)
		}

		event.Msg("content fetched")
		return nil
	}
}

// cleanupLoop periodically removes expired content
func (n *Node) cleanupLoop(retention time.Duration) {
	defer n.wg.Done()

	ticker := time.NewTicker(cleanupInterval(retention))
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			removed, err := n.storage.Cleanup(retention)
			if err != nil {
				log.Warn().Err(err).Msg("content cleanup failed")
				continue
			}
			if removed > 0 {
				log.Info().Int("removed", removed).Msg("expired content removed")
			}
		}
	}
}

// minCleanupInterval is the shortest pause between cleanup passes
var minCleanupInterval = time.Minute

func cleanupInterval(retention time.Duration) time.Duration {
	return min(max(retention/10, minCleanupInterval), time.Hour)
}

// Close shuts down the node
func (n *Node) Close() error {
	n.cancel()
	n.wg.Wait()

	var errs []error
	if err := n.host.Close(); err != nil {
		errs = append(errs, fmt.Errorf("host: %w", err))
	}
	if err := n.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	return errors.Join(errs...)
}
