package transfer

import (
	"net"
	"sync"
	"time"
)

// chunkSize bounds a single write so the idle deadline is refreshed while
// a large blob drains
const chunkSize = 32 * 1024

// idleConn pushes the connection deadline forward before every read and
// every chunk written. A session only times out when no byte moves for
// the whole timeout, however long the blob takes in total.
type idleConn struct {
	net.Conn
	timeout time.Duration

	mu      sync.Mutex
	aborted bool
}

func newIdleConn(conn net.Conn, timeout time.Duration) *idleConn {
	return &idleConn{Conn: conn, timeout: timeout}
}

func (c *idleConn) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.timeout <= 0 {
		return
	}
	c.Conn.SetDeadline(time.Now().Add(c.timeout))
}

// abort fails pending and future I/O. Later refreshes do not undo it.
func (c *idleConn) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	c.Conn.SetDeadline(time.Unix(1, 0))
}

func (c *idleConn) Read(p []byte) (int, error) {
	c.refresh()
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), chunkSize)
		c.refresh()
		m, err := c.Conn.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
