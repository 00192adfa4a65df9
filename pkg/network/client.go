package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// maxStatusSize bounds the response buffer
const maxStatusSize = 1024

// Client delivers single envelopes to a dispatch server. Every Send dials
// a fresh connection and nothing is retried.
type Client struct {
	cfg ClientConfig
}

// NewClient creates a client
func NewClient(cfg ClientConfig) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Send delivers env to target ("host:port") and returns the status line
// the server answered with. Unreachable targets yield *ConnectError and
// socket failures yield *IOError.
func (c *Client) Send(ctx context.Context, target string, env protocol.Envelope) (string, error) {
	frame, err := c.encode(env)
	if err != nil {
		return "", err
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return "", &ConnectError{Target: target, Err: err}
	}
	defer conn.Close()

	// Cancelling ctx aborts any pending read or write
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	conn.SetWriteDeadline(deadline(c.cfg.WriteTimeout))
	if _, err := conn.Write(frame); err != nil {
		return "", &IOError{Op: "write", Remote: target, Err: ctxErr(ctx, err)}
	}

	conn.SetReadDeadline(deadline(c.cfg.ReadTimeout))
	status, err := readStatus(conn)
	if err != nil {
		return "", &IOError{Op: "read", Remote: target, Err: ctxErr(ctx, err)}
	}

	log.Debug().
		Str("target", target).
		Str("topic", env.Topic().String()).
		Int("bytes", env.Size()).
		Str("status", status).
		Msg("envelope delivered")

	return status, nil
}

// Deliver sends env and converts a rejection status into ErrRejected
func (c *Client) Deliver(ctx context.Context, target string, env protocol.Envelope) error {
	status, err := c.Send(ctx, target, env)
	if err != nil {
		return err
	}
	if !protocol.IsAccepted(status) {
		return fmt.Errorf("%w: %q", ErrRejected, status)
	}
	return nil
}

func (c *Client) encode(env protocol.Envelope) ([]byte, error) {
	if c.cfg.Framing == protocol.FramingSingleRead {
		return env.Encode()
	}
	return protocol.EncodeFrame(env)
}

// readStatus reads one status line. Reads continue only while the bytes
// seen so far are a strict prefix of a known status.
func readStatus(r io.Reader) (string, error) {
	buf := make([]byte, maxStatusSize)
	n := 0
	for {
		m, err := r.Read(buf[n:])
		n += m
		if n > 0 && (err != nil || !partialStatus(string(buf[:n]))) {
			return string(buf[:n]), nil
		}
		if err != nil {
			return "", err
		}
	}
}

func partialStatus(s string) bool {
	for _, status := range []string{protocol.StatusAccepted, protocol.StatusRejected} {
		if len(s) < len(status) && strings.HasPrefix(status, s) {
			return true
		}
	}
	return false
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
