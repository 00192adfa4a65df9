package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/protocol"
)

// HandlerFunc processes the payload of one envelope
type HandlerFunc func(ctx context.Context, payload []byte) error

// FailurePolicy decides what the consumer does when a handler fails
type FailurePolicy uint8

const (
	// ContinueOnError logs the failure and takes the next envelope
	ContinueOnError FailurePolicy = iota
	// StopOnError ends the consumer and closes the queue
	StopOnError
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case StopOnError:
		return "stop"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParseFailurePolicy resolves a policy by name
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "continue", "log":
		return ContinueOnError, nil
	case "stop", "fail":
		return StopOnError, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", name)
	}
}

// Outcome of a single dispatch
type Outcome string

const (
	OutcomeHandled Outcome = "handled"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Receipt describes one dispatched envelope
type Receipt struct {
	Topic   protocol.Topic
	Size    int
	Outcome Outcome
	Error   string
	Elapsed time.Duration
	At      time.Time
}

// Recorder persists receipts
type Recorder interface {
	Record(ctx context.Context, r Receipt) error
}

// Router is the single consumer of a Queue. It dispatches each envelope to
// the handler registered for its topic, one at a time, in arrival order.
type Router struct {
	mu       sync.RWMutex
	handlers map[protocol.Topic]HandlerFunc
	policy   FailurePolicy
	recorder Recorder

	stats routerCounters
}

// NewRouter creates a router with the given failure policy
func NewRouter(policy FailurePolicy) *Router {
	return &Router{
		handlers: make(map[protocol.Topic]HandlerFunc),
		policy:   policy,
	}
}

// Handle registers fn for topic, replacing any previous handler
func (r *Router) Handle(topic protocol.Topic, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = fn
}

// AttachRecorder attaches a receipt recorder
func (r *Router) AttachRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// Policy returns the failure policy
func (r *Router) Policy() FailurePolicy {
	return r.policy
}

// Stats returns a snapshot of the dispatch counters
func (r *Router) Stats() RouterStats {
	return r.stats.snapshot()
}

// Run consumes q until ctx is done or q is closed. Under StopOnError the
// first *HandlerError is returned. The queue is closed on return so that
// blocked producers are released.
func (r *Router) Run(ctx context.Context, q *Queue) error {
	defer q.Close()

	log.Info().Str("policy", r.policy.String()).Int("capacity", q.Cap()).Msg("dispatch consumer started")
	defer log.Info().Msg("dispatch consumer stopped")

	for {
		env, err := q.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.Dispatch(ctx, env); err != nil && r.policy == StopOnError {
			return err
		}
	}
}

// Dispatch runs the handler for one envelope. Unknown topics are logged
// and skipped; they are not an error.
func (r *Router) Dispatch(ctx context.Context, env protocol.Envelope) error {
	r.mu.RLock()
	handler, ok := r.handlers[env.Topic()]
	recorder := r.recorder
	r.mu.RUnlock()

	receipt := Receipt{
		Topic: env.Topic(),
		Size:  env.Size(),
		At:    time.Now(),
	}

	if !ok {
		r.stats.skipped.Add(1)
		log.Warn().
			Str("topic", env.Topic().String()).
			Int("bytes", env.Size()).
			Msg("no handler for topic, skipping")
		receipt.Outcome = OutcomeSkipped
		r.record(ctx, recorder, receipt)
		return nil
	}

	err := call(ctx, handler, env.Payload())
	receipt.Elapsed = time.Since(receipt.At)

	if err != nil {
		herr := &HandlerError{Topic: env.Topic(), Err: err}
		r.stats.failed.Add(1)
		log.Error().
			Err(herr).
			Str("topic", env.Topic().String()).
			Str("policy", r.policy.String()).
			Msg("handler failed")
		receipt.Outcome = OutcomeFailed
		receipt.Error = err.Error()
		r.record(ctx, recorder, receipt)
		return herr
	}

	r.stats.handled.Add(1)
	log.Debug().
		Str("topic", env.Topic().String()).
		Int("bytes", env.Size()).
		Dur("elapsed", receipt.Elapsed).
		Msg("envelope handled")
	receipt.Outcome = OutcomeHandled
	r.record(ctx, recorder, receipt)
	return nil
}

func (r *Router) record(ctx context.Context, rec Recorder, receipt Receipt) {
	if rec == nil {
		return
	}
	if err := rec.Record(context.WithoutCancel(ctx), receipt); err != nil {
		log.Warn().Err(err).Str("topic", receipt.Topic.String()).Msg("failed to record receipt")
	}
}

// call invokes fn, converting a panic into an error
func call(ctx context.Context, fn HandlerFunc, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, payload)
}
