package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/crypto"
	"github.com/ZentaChain/chuck/pkg/network"
)

var (
	ErrUnknownTicket = errors.New("sender does not recognize ticket")
	ErrSizeMismatch  = errors.New("transfer size does not match ticket")
	ErrHashMismatch  = errors.New("transfer hash does not match ticket")
	ErrTooLarge      = errors.New("transfer exceeds receiver limit")
)

// DefaultMaxSize bounds a single fetched blob
const DefaultMaxSize = 1 << 30

// ReceiverConfig controls a Receiver
type ReceiverConfig struct {
	DialTimeout time.Duration
	// IOTimeout is an idle limit: it fails the fetch only when no byte
	// arrives for that long.
	IOTimeout time.Duration
	MaxSize     uint64
	// OutputDir receives fetched blobs when used as a handler; empty keeps
	// them in memory only.
	OutputDir string
}

// Received is a verified blob
type Received struct {
	Name    string
	From    string
	Data    []byte
	Elapsed time.Duration
}

// Receiver redeems tickets
type Receiver struct {
	cfg ReceiverConfig
}

func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = network.DefaultDialTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Receiver{cfg: cfg}
}

// Fetch pulls the blob described by ticket and verifies its size and hash
func (r *Receiver) Fetch(ctx context.Context, ticket Ticket) (*Received, error) {
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	if ticket.Size > r.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, ticket.Size, r.cfg.MaxSize)
	}

	start := time.Now()

	dialer := net.Dialer{Timeout: r.cfg.DialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", ticket.Addr)
	if err != nil {
		return nil, &network.ConnectError{Target: ticket.Addr, Err: err}
	}
	defer raw.Close()

	conn := newIdleConn(raw, r.cfg.IOTimeout)
	stop := context.AfterFunc(ctx, conn.abort)
	defer stop()

	if _, err := conn.Write(ticket.Token[:]); err != nil {
		return nil, ioErr(ctx, "write", ticket.Addr, err)
	}

	status, err := readByte(conn)
	if err != nil {
		return nil, ioErr(ctx, "read", ticket.Addr, err)
	}
	if status != statusOK {
		return nil, ErrUnknownTicket
	}

	size, err := readUint64(conn)
	if err != nil {
		return nil, ioErr(ctx, "read", ticket.Addr, err)
	}
	if size != ticket.Size {
		conn.Write([]byte{ackCorrupt})
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSizeMismatch, size, ticket.Size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, ioErr(ctx, "read", ticket.Addr, err)
	}

	if !crypto.VerifyHash(data, ticket.Hash[:]) {
		conn.Write([]byte{ackCorrupt})
		return nil, ErrHashMismatch
	}

	if _, err := conn.Write([]byte{ackVerified}); err != nil {
		return nil, ioErr(ctx, "write", ticket.Addr, err)
	}

	return &Received{
		Name:    ticket.Name,
		From:    ticket.Addr,
		Data:    data,
		Elapsed: time.Since(start),
	}, nil
}

// Save writes rcv into dir and returns the file path
func (r *Receiver) Save(dir string, rcv *Received) (string, error) {
	if !validName(rcv.Name) {
		return "", fmt.Errorf("%w: name %q", ErrInvalidTicket, rcv.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, rcv.Name)
	if err := os.WriteFile(path, rcv.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Handler adapts the receiver to the transfer-ticket topic
func (r *Receiver) Handler() network.HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		ticket, err := DecodeTicket(payload)
		if err != nil {
			return err
		}

		log.Info().Str("ticket", ticket.String()).Msg("handling ticket")

		rcv, err := r.Fetch(ctx, ticket)
		if err != nil {
			return err
		}

		event := log.Info().
			Str("name", rcv.Name).
			Int("bytes", len(rcv.Data)).
			Dur("duration", rcv.Elapsed)

		if r.cfg.OutputDir != "" {
			path, err := r.Save(r.cfg.OutputDir, rcv)
			if err != nil {
				return err
			}
			event = event.Str("path", path)
		}

		event.Msg("ticket fetched")
		return nil
	}
}

func ioErr(ctx context.Context, op, remote string, err error) error {
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return &network.IOError{Op: op, Remote: remote, Err: err}
}
