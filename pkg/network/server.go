package network

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Server accepts control-plane connections and forwards every decoded
// envelope to a Queue. Each connection is served by its own goroutine.
type Server struct {
	cfg      ServerConfig
	queue    *Queue
	listener net.Listener

	// ctx is cancelled by Close so producers blocked on a full queue return
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}

	stats serverCounters
}

// Bind acquires the listen address. The returned server does not accept
// connections until Run is called.
func Bind(cfg ServerConfig, queue *Queue) (*Server, error) {
	if queue == nil {
		return nil, ErrNoQueue
	}
	cfg = cfg.withDefaults()

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, &BindError{Addr: cfg.Addr, Err: err}
	}

	s := newServer(listener, cfg, queue)

	log.Info().
		Str("addr", listener.Addr().String()).
		Str("framing", cfg.Framing.String()).
		Int("max_frame", cfg.MaxFrameSize).
		Msg("dispatch server listening")

	return s, nil
}

// newServer builds a server around an already bound listener
func newServer(listener net.Listener, cfg ServerConfig, queue *Queue) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		queue:    queue,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}
}

// Addr returns the bound listen address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run accepts connections until ctx is done or Close is called. A failed
// accept is logged and retried after a short pause. Run returns nil on
// shutdown and waits for active connections to finish.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	s.acceptLoop()
	s.Close()
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return
			}

			s.stats.acceptErrors.Add(1)
			log.Warn().Err(&AcceptError{Err: err}).Msg("accept failed, continuing")

			select {
			case <-time.After(s.cfg.AcceptBackoff):
			case <-s.done:
				return
			}
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}

		s.stats.connectionsAccepted.Add(1)
		go s.handleConnection(conn)
	}
}

// track registers conn unless the server is shutting down
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
	s.wg.Done()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting, closes every active connection and waits for
// their handlers to return. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.cancel()
		close(s.done)
		err = s.listener.Close()

		log.Info().Str("addr", s.listener.Addr().String()).Msg("dispatch server stopped")
	})

	s.wg.Wait()
	return err
}

// Stats returns a snapshot of the server counters
func (s *Server) Stats() ServerStats {
	return s.stats.snapshot()
}
