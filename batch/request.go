// Package batch implements the single-host batching evaluator: a
// fixed number of accelerator-context workers that coalesce
// concurrent evaluation requests into fixed-size batches, adaptively
// choosing between batched and single-shot paths. It is one of the
// three evaluator variants (local-CPU, local
// accelerator-batched, remote-distributed).
package batch

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned by Request.Wait when the bound elapses before
// the request is serviced.
var ErrTimeout = errors.New("batch: request timed out")

// ErrClosed is returned when a request cannot be enqueued because the
// Scheduler has been shut down.
var ErrClosed = errors.New("batch: scheduler closed")

// Request is one queued evaluation: an input-owned
// feature buffer, a result slot, and a one-shot notification primitive
// keyed on ready-or-cancelled. Spurious
// wakeups are impossible here since done is only ever closed once.
type Request struct {
	Input []float32

	Policy []float32
	Value  float32

	done      chan struct{}
	err       error
	cancelled int32 // atomic bool
}

// NewRequest wraps an already-encoded feature buffer for dispatch via
// Scheduler.ForwardAsync.
func NewRequest(input []float32) *Request {
	return &Request{Input: input, done: make(chan struct{})}
}

// complete is called exactly once by the batch worker that services
// this request.
func (r *Request) complete(policy []float32, value float32, err error) {
	r.Policy = policy
	r.Value = value
	r.err = err
	close(r.done)
}

// Wait blocks until the request is serviced or timeout elapses. On
// timeout it marks the request cancelled so a batch worker that
// completes it later discards the output.
func (r *Request) Wait(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.done:
		return r.err
	case <-t.C:
		atomic.StoreInt32(&r.cancelled, 1)
		return ErrTimeout
	}
}

// Cancelled reports whether the requester has already abandoned this
// request.
func (r *Request) Cancelled() bool { return atomic.LoadInt32(&r.cancelled) == 1 }
