package common

import (
	"context"
	"sync"
	"time"
)

// PendingRequest is one unit of relay work: the payload to send, how long the submitter is
// willing to wait and a slot for the eventual result. It is completed exactly once; the first
// call to Complete wins, later calls are ignored.
type PendingRequest struct {
	payload []byte
	timeout time.Duration
	created time.Time

	once sync.Once
	done chan struct{}
	resp []byte
	err  error
}

// NewPendingRequest creates an uncompleted request. A timeout <= 0 makes Wait block until completion.
func NewPendingRequest(payload []byte, timeout time.Duration) *PendingRequest {
	return &PendingRequest{
		payload: payload,
		timeout: timeout,
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

// Payload returns the request bytes
func (r *PendingRequest) Payload() []byte {
	return r.payload
}

// Timeout returns the time the submitter waits for the response
func (r *PendingRequest) Timeout() time.Duration {
	return r.timeout
}

// Age returns the time since the request was created
func (r *PendingRequest) Age() time.Duration {
	return time.Since(r.created)
}

// Complete sets the result and wakes all waiters. It returns false if the request was already completed.
func (r *PendingRequest) Complete(resp []byte, err error) bool {
	completed := false
	r.once.Do(func() {
		r.resp, r.err = resp, err
		close(r.done)
		completed = true
	})
	return completed
}

// Done is closed once the request is completed
func (r *PendingRequest) Done() <-chan struct{} {
	return r.done
}

// IsCompleted reports whether Complete was called
func (r *PendingRequest) IsCompleted() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the request is completed or its timeout expired. A local timeout
// returns ErrLocalTimeout and leaves the request untouched, so a later completion is still
// recorded but no longer observed by this caller.
func (r *PendingRequest) Wait() ([]byte, error) {
	return r.WaitContext(context.Background())
}

// WaitContext is like Wait but also returns early when ctx is done
func (r *PendingRequest) WaitContext(ctx context.Context) ([]byte, error) {
	var timeoutCh <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-r.done:
		return r.resp, r.err
	case <-timeoutCh:
		return nil, WrapError(RetCLocalTimeout, "no response within "+r.timeout.String(), nil)
	case <-ctx.Done():
		return nil, WrapError(RetCLocalTimeout, "wait canceled", ctx.Err())
	}
}
