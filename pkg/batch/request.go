// Package batch holds the pending unit of translation work and the greedy
// grouping that packs units under a token ceiling before dispatch.
package batch

import (
	"context"
	"sync"
	"time"
)

// Result is the terminal state of one translation request.
type Result struct {
	Text string
	Err  error
}

// Request is a single fragment waiting to be translated. The completion
// handle is part of the request itself: whoever ends up with the request
// settles it exactly once, later Resolve/Reject calls are ignored. That
// makes cancellation safe even while a dispatch is still in flight.
type Request struct {
	SourceText  string
	PageContext string
	SubmittedAt time.Time

	once sync.Once
	done chan Result
}

// NewRequest creates a pending request for sourceText. pageContext is the
// surrounding document title passed along to the model.
func NewRequest(sourceText, pageContext string) *Request {
	return &Request{
		SourceText:  sourceText,
		PageContext: pageContext,
		SubmittedAt: time.Now(),
		done:        make(chan Result, 1),
	}
}

// Resolve settles the request with a translation. No-op if already settled.
func (r *Request) Resolve(text string) {
	r.once.Do(func() {
		r.done <- Result{Text: text}
	})
}

// Reject settles the request with an error. No-op if already settled.
func (r *Request) Reject(err error) {
	r.once.Do(func() {
		r.done <- Result{Err: err}
	})
}

// Wait blocks until the request is settled or ctx is done.
func (r *Request) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-r.done:
		// put it back so concurrent waiters see the same result
		r.done <- res
		return res.Text, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
