package meshstorage

import (
	"bytes"
	"errors"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
)

func connectNodes(t *testing.T, from, to *Node) {
	t.Helper()
	info := peer.AddrInfo{ID: to.ID(), Addrs: to.Addrs()}
	if err := from.Host().Connect(testContext(t), info); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
}

func TestRPCPing(t *testing.T) {
	node1 := startNode(t)
	node2 := startNode(t)
	connectNodes(t, node2, node1)

	client := NewRPCClient(node2.Host())
	if err := client.Ping(testContext(t), node1.ID()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestRPCGetManifestAndShard(t *testing.T) {
	node1 := startNode(t)
	node2 := startNode(t)
	connectNodes(t, node2, node1)

	data := bytes.Repeat([]byte("shard me "), 100)
	c, err := node1.Add(data)
	if err != nil {
		t.Fatalf("Failed to add content: %v", err)
	}

	client := NewRPCClient(node2.Host())

	m, err := client.GetManifest(testContext(t), node1.ID(), c.String())
	if err != nil {
		t.Fatalf("GetManifest failed: %v", err)
	}
	if m.Size != len(data) || m.DataShards != DataShards {
		t.Errorf("Unexpected manifest: %+v", m)
	}

	shard, err := client.GetShard(testContext(t), node1.ID(), c.String(), 0)
	if err != nil {
		t.Fatalf("GetShard failed: %v", err)
	}
	if len(shard) != m.ShardSize {
		t.Errorf("Shard size = %d, want %d", len(shard), m.ShardSize)
	}
}

func TestRPCUnknownContent(t *testing.T) {
	node1 := startNode(t)
	node2 := startNode(t)
	connectNodes(t, node2, node1)

	client := NewRPCClient(node2.Host())
	_, err := client.GetManifest(testContext(t), node1.ID(), "bafk-missing")

	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Expected *RemoteError, got %v", err)
	}
	if remote.Peer != node1.ID() {
		t.Errorf("RemoteError peer = %s, want %s", remote.Peer, node1.ID())
	}
}
