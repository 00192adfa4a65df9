package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/crypto"
)

var ErrSenderClosed = errors.New("sender closed")

const DefaultIOTimeout = 30 * time.Second

// minAckRate is the slowest link the sender keeps waiting on. Once the
// blob is handed to the kernel the sender sees no progress, so the ack
// wait grows with the blob size instead.
const minAckRate = 16 * 1024 // bytes per second

// SenderConfig controls a Sender
type SenderConfig struct {
	ListenAddr string
	// AdvertiseAddr is written into tickets. Defaults to the bound address,
	// which is only useful when ListenAddr names a concrete host. A bare
	// host is completed with the bound port.
	AdvertiseAddr string
	// IOTimeout is an idle limit on each receiver session
	IOTimeout time.Duration
}

// Sender serves offered blobs to receivers holding a matching ticket
type Sender struct {
	cfg      SenderConfig
	listener net.Listener

	mu     sync.Mutex
	offers map[[TokenSize]byte]*Transfer
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Transfer is one offered blob
type Transfer struct {
	ticket Ticket
	data   []byte

	done     chan struct{}
	doneOnce sync.Once
}

// Ticket returns the ticket that redeems this transfer
func (t *Transfer) Ticket() Ticket {
	return t.ticket
}

// Done is closed once a receiver acknowledged a verified copy
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transfer completes or ctx is done
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transfer) finish() {
	t.doneOnce.Do(func() { close(t.done) })
}

// NewSender binds the transfer listener
func NewSender(cfg SenderConfig) (*Sender, error) {
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	cfg.AdvertiseAddr = completeAddr(cfg.AdvertiseAddr, listener.Addr())

	return &Sender{
		cfg:      cfg,
		listener: listener,
		offers:   make(map[[TokenSize]byte]*Transfer),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func completeAddr(advertise string, bound net.Addr) string {
	if advertise == "" {
		return bound.String()
	}
	if _, _, err := net.SplitHostPort(advertise); err == nil {
		return advertise
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return advertise
	}
	return net.JoinHostPort(advertise, port)
}

// Addr returns the bound listen address
func (s *Sender) Addr() net.Addr {
	return s.listener.Addr()
}

// Offer registers data under a fresh ticket. The ticket is single use:
// it is withdrawn once a receiver acknowledges the blob.
func (s *Sender) Offer(name string, data []byte) (*Transfer, error) {
	token, err := crypto.GenerateNonce(TokenSize)
	if err != nil {
		return nil, err
	}

	ticket := Ticket{
		Addr: s.cfg.AdvertiseAddr,
		Name: name,
		Size: uint64(len(data)),
		Hash: crypto.Sum256(data),
	}
	copy(ticket.Token[:], token)

	if err := ticket.Validate(); err != nil {
		return nil, err
	}

	tr := &Transfer{ticket: ticket, data: data, done: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSenderClosed
	}
	s.offers[ticket.Token] = tr

	log.Debug().Str("name", name).Int("bytes", len(data)).Msg("transfer offered")
	return tr, nil
}

// Serve accepts receivers until ctx is done or Close is called
func (s *Sender) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			log.Warn().Err(err).Msg("transfer accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer s.untrack(conn)
			s.serveConn(conn)
		}()
	}
}

func (s *Sender) serveConn(raw net.Conn) {
	logger := log.With().Str("remote", raw.RemoteAddr().String()).Logger()
	conn := newIdleConn(raw, s.cfg.IOTimeout)

	var token [TokenSize]byte
	if _, err := io.ReadFull(conn, token[:]); err != nil {
		logger.Warn().Err(err).Msg("failed to read transfer token")
		return
	}

	s.mu.Lock()
	tr, ok := s.offers[token]
	s.mu.Unlock()

	if !ok {
		logger.Warn().Msg("unknown transfer token")
		conn.Write([]byte{statusUnknown})
		return
	}

	w := bufio.NewWriter(conn)
	w.WriteByte(statusOK)
	writeUint64(w, uint64(len(tr.data)))
	w.Write(tr.data)
	if err := w.Flush(); err != nil {
		logger.Warn().Err(err).Str("name", tr.ticket.Name).Msg("failed to stream blob")
		return
	}

	raw.SetDeadline(time.Now().Add(ackWait(s.cfg.IOTimeout, len(tr.data))))
	ack, err := readByte(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("receiver did not acknowledge")
		return
	}
	if ack != ackVerified {
		logger.Warn().Str("name", tr.ticket.Name).Msg("receiver reported a corrupt copy")
		return
	}

	s.mu.Lock()
	delete(s.offers, token)
	s.mu.Unlock()

	tr.finish()
	logger.Info().Str("name", tr.ticket.Name).Int("bytes", len(tr.data)).Msg("transfer complete")
}

// ackWait bounds the wait for the receiver's verdict on a blob of size bytes
func ackWait(idle time.Duration, size int) time.Duration {
	return idle + time.Duration(size/minAckRate)*time.Second
}

// track registers conn unless the sender is closing
func (s *Sender) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Sender) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
	s.wg.Done()
}

func (s *Sender) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pending returns the number of unacknowledged offers
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

// Close stops serving, aborts in-flight sessions and waits for their
// goroutines to return
func (s *Sender) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}
