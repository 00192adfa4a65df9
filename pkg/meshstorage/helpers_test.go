package meshstorage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/chuck/pkg/logging"
)

func init() {
	logging.ConfigureTests()
}

func startNode(t *testing.T) *Node {
	t.Helper()
	n, err := NewNode(context.Background(), &NodeConfig{
		ListenHost: "127.0.0.1",
		DataDir:    t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
