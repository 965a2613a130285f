// Package router feeds serialized requests to the matching engine one at a
// time and routes each reply back to the originating caller by correlation
// id. It is the only write path into the engine: exactly one consumer
// goroutine applies requests, which makes trade-id assignment and event
// ordering deterministic by construction.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchbook/pkg/exchange/engine"
)

// ErrRequestTimeout is returned when no reply arrives within the bound.
var ErrRequestTimeout = errors.New("request timeout")

// ErrRouterClosed is returned for submissions after shutdown began.
var ErrRouterClosed = errors.New("router closed")

type outcome struct {
	reply engine.Reply
	err   error
}

type envelope struct {
	correlationID string
	req           engine.Request
	reply         chan outcome // buffered(1): the consumer never blocks on delivery
}

// Router is safe for concurrent Submit from any number of gateway handlers;
// that concurrency stops at the queue boundary.
type Router struct {
	eng     *engine.Engine
	queue   chan envelope
	timeout time.Duration
	log     *zap.Logger
}

func New(eng *engine.Engine, queueSize int, timeout time.Duration, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		eng:     eng,
		queue:   make(chan envelope, queueSize),
		timeout: timeout,
		log:     log,
	}
}

// Run consumes the queue until ctx is cancelled. Call from exactly one
// goroutine.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case env := <-r.queue:
			r.process(env)
		}
	}
}

// process applies one request. A failure here — including a panic — must
// not prevent subsequent messages from being processed.
func (r *Router) process(env envelope) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("request panicked",
				zap.String("correlationId", env.correlationID),
				zap.Any("panic", p))
			env.reply <- outcome{err: fmt.Errorf("internal error processing request %s", env.correlationID)}
		}
	}()

	reply, err := r.eng.Apply(env.req)
	env.reply <- outcome{reply: reply, err: err}
}

// drain fails any requests still queued at shutdown.
func (r *Router) drain() {
	for {
		select {
		case env := <-r.queue:
			env.reply <- outcome{err: ErrRouterClosed}
		default:
			return
		}
	}
}

// Submit enqueues a request and awaits its correlated reply, bounded by the
// router's timeout and the caller's context. Business errors come back as
// the error value; a timeout is distinct (ErrRequestTimeout).
func (r *Router) Submit(ctx context.Context, req engine.Request) (engine.Reply, error) {
	env := envelope{
		correlationID: uuid.NewString(),
		req:           req,
		reply:         make(chan outcome, 1),
	}

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	select {
	case r.queue <- env:
	case <-deadline.C:
		return nil, fmt.Errorf("%w: queue full after %s (correlation %s)",
			ErrRequestTimeout, r.timeout, env.correlationID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-env.reply:
		return out.reply, out.err
	case <-deadline.C:
		return nil, fmt.Errorf("%w: no reply after %s (correlation %s)",
			ErrRequestTimeout, r.timeout, env.correlationID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
