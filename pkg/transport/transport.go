// Package transport is the boundary to the remote language model. The
// rest of the pipeline speaks to it through one interface and never
// re-checks what a provider actually returned: a response that is not
// usable text surfaces as an error here, once.
package transport

import (
	"context"
	"errors"
)

const (
	// TypeBatchTranslate sends many [n]-indexed fragments in one call.
	TypeBatchTranslate = "batch_translate"
	// TypeTranslate sends a single fragment.
	TypeTranslate = "translate"
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNoContent         = errors.New("no translation received")
)

// Request is one outbound call. Payload is the already-formatted text,
// Context is the surrounding document title, Origin identifies the page
// the fragments came from, and Count is the number of items packed into a
// batch payload.
type Request struct {
	Type    string
	Payload string
	Context string
	Origin  string
	Count   int
}

// Transport sends a request to a model provider and returns the raw
// response content. Implementations own provider selection, prompting and
// pacing; callers own interpretation of the returned text.
type Transport interface {
	Send(ctx context.Context, req Request) (string, error)
}
