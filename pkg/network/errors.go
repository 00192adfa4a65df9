package network

import (
	"errors"
	"fmt"
	"net"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

var (
	ErrQueueClosed = errors.New("dispatch queue closed")
	ErrRejected    = errors.New("envelope rejected by receiver")
	ErrNoQueue     = errors.New("server requires a dispatch queue")
)

// DecodeError is re-exported so callers of this package need not import
// protocol just to match it.
type DecodeError = protocol.DecodeError

// BindError reports that the listen address could not be acquired
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// AcceptError reports a failed accept on the listener. The accept loop
// logs it and keeps running.
type AcceptError struct {
	Err error
}

func (e *AcceptError) Error() string {
	return fmt.Sprintf("accept: %v", e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }

// IOError reports a read or write failure on an established connection,
// including deadline expiry.
type IOError struct {
	Op     string
	Remote string
	Err    error
}

func (e *IOError) Error() string {
	if e.Remote == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline expiry
func (e *IOError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ConnectError reports that the target could not be reached
type ConnectError struct {
	Target string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DispatchError reports that a decoded envelope could not be handed to the
// consumer, normally because the consumer has stopped.
type DispatchError struct {
	Topic protocol.Topic
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Topic, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// HandlerError wraps a failure returned (or panicked) by a topic handler
type HandlerError struct {
	Topic protocol.Topic
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
