package network

import "sync/atomic"

// ServerStats is a snapshot of server counters
type ServerStats struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsActive   int64  `json:"connections_active"`
	FramesAccepted      uint64 `json:"frames_accepted"`
	FramesRejected      uint64 `json:"frames_rejected"`
	DispatchFailures    uint64 `json:"dispatch_failures"`
	AcceptErrors        uint64 `json:"accept_errors"`
	ReadErrors          uint64 `json:"read_errors"`
}

type serverCounters struct {
	connectionsAccepted atomic.Uint64
	connectionsActive   atomic.Int64
	framesAccepted      atomic.Uint64
	framesRejected      atomic.Uint64
	dispatchFailures    atomic.Uint64
	acceptErrors        atomic.Uint64
	readErrors          atomic.Uint64
}

func (c *serverCounters) snapshot() ServerStats {
	return ServerStats{
		ConnectionsAccepted: c.connectionsAccepted.Load(),
		ConnectionsActive:   c.connectionsActive.Load(),
		FramesAccepted:      c.framesAccepted.Load(),
		FramesRejected:      c.framesRejected.Load(),
		DispatchFailures:    c.dispatchFailures.Load(),
		AcceptErrors:        c.acceptErrors.Load(),
		ReadErrors:          c.readErrors.Load(),
	}
}

// RouterStats is a snapshot of consumer counters
type RouterStats struct {
	Handled uint64 `json:"handled"`
	Failed  uint64 `json:"failed"`
	Skipped uint64 `json:"skipped"`
}

type routerCounters struct {
	handled atomic.Uint64
	failed  atomic.Uint64
	skipped atomic.Uint64
}

func (c *routerCounters) snapshot() RouterStats {
	return RouterStats{
		Handled: c.handled.Load(),
		Failed:  c.failed.Load(),
		Skipped: c.skipped.Load(),
	}
}
