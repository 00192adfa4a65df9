package network

import (
	"bytes"
	"errors"
	"io"
	"net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// frameSource yields one frame body per call
type frameSource interface {
	Next() ([]byte, error)
	Buffered() int
}

// singleReader treats each socket read as exactly one bare envelope
type singleReader struct {
	conn net.Conn
	buf  []byte
}

func (r *singleReader) Next() ([]byte, error) {
	n, err := r.conn.Read(r.buf)
	if n > 0 {
		return bytes.Clone(r.buf[:n]), nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (r *singleReader) Buffered() int { return 0 }

func (s *Server) newFrameSource(conn net.Conn) frameSource {
	if s.cfg.Framing == protocol.FramingSingleRead {
		return &singleReader{conn: conn, buf: make([]byte, s.cfg.MaxFrameSize)}
	}
	return protocol.NewFrameReader(conn, s.cfg.MaxFrameSize)
}

// handleConnection runs decode, dispatch and respond cycles on one socket
// until the peer leaves, an I/O error occurs or the consumer is gone. A
// header whose body cannot be skipped is answered once before closing.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)

	s.stats.connectionsActive.Add(1)
	defer s.stats.connectionsActive.Add(-1)

	remote := conn.RemoteAddr().String()
	logger := log.With().Str("remote", remote).Logger()
	logger.Debug().Msg("connection opened")

	frames := s.newFrameSource(conn)

	for {
		conn.SetReadDeadline(deadline(s.cfg.ReadTimeout))

		body, err := frames.Next()
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				if !s.reject(conn, logger, err) || decErr.LostSync() {
					return
				}
				continue
			}
			s.readFailed(logger, remote, frames.Buffered(), err)
			return
		}

		env, err := protocol.DecodeEnvelope(body)
		if err != nil {
			if !s.reject(conn, logger, err) {
				return
			}
			continue
		}

		if err := s.queue.Send(s.ctx, env); err != nil {
			s.stats.dispatchFailures.Add(1)
			logger.Error().
				Err(&DispatchError{Topic: env.Topic(), Err: err}).
				Msg("consumer unavailable, dropping connection")
			return
		}
		s.stats.framesAccepted.Add(1)

		logger.Debug().
			Str("topic", env.Topic().String()).
			Int("bytes", env.Size()).
			Msg("envelope enqueued")

		if err := s.respond(conn, protocol.StatusAccepted); err != nil {
			logger.Warn().Err(&IOError{Op: "write", Remote: remote, Err: err}).Msg("status write failed")
			return
		}
	}
}

// reject answers a malformed frame. It reports whether the connection is
// still usable.
func (s *Server) reject(conn net.Conn, logger zerolog.Logger, cause error) bool {
	s.stats.framesRejected.Add(1)
	logger.Warn().Err(cause).Msg("rejecting malformed frame")

	if err := s.respond(conn, protocol.StatusRejected); err != nil {
		logger.Warn().
			Err(&IOError{Op: "write", Remote: conn.RemoteAddr().String(), Err: err}).
			Msg("status write failed")
		return false
	}
	return true
}

func (s *Server) respond(conn net.Conn, status string) error {
	conn.SetWriteDeadline(deadline(s.cfg.WriteTimeout))
	_, err := io.WriteString(conn, status)
	return err
}

func (s *Server) readFailed(logger zerolog.Logger, remote string, buffered int, err error) {
	if errors.Is(err, io.EOF) {
		logger.Debug().Msg("connection closed by peer")
		return
	}
	if s.isClosed() {
		logger.Debug().Msg("connection closed on shutdown")
		return
	}

	ioErr := &IOError{Op: "read", Remote: remote, Err: err}
	if ioErr.Timeout() && buffered == 0 {
		logger.Debug().Msg("idle connection timed out")
		return
	}

	s.stats.readErrors.Add(1)
	logger.Warn().Err(ioErr).Int("buffered", buffered).Msg("read failed, closing connection")
}
