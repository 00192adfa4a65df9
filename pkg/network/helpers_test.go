package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/chuck/pkg/logging"
	"github.com/ZentaChain/chuck/pkg/protocol"
)

func init() {
	logging.ConfigureTests()
}

// startServer binds on an ephemeral loopback port and runs the accept loop
// until the test ends.
func startServer(t *testing.T, cfg ServerConfig, queue *Queue) *Server {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	srv, err := Bind(cfg, queue)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv
}

func mustEnvelope(t *testing.T, topic protocol.Topic, payload []byte) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(topic, payload)
	require.NoError(t, err)
	return env
}

func receiveWithin(t *testing.T, q *Queue, d time.Duration) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	env, err := q.Receive(ctx)
	require.NoError(t, err)
	return env
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
