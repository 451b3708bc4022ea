// Package queue is the entry point of the translation pipeline. Callers
// enqueue one fragment at a time; the queue buffers them over a short
// window, packs them into token-bounded groups and hands the groups to
// the dispatch scheduler, settling every caller's future along the way.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nguyenvanduocit/sitetrans/pkg/batch"
	"github.com/nguyenvanduocit/sitetrans/pkg/cache"
	"github.com/nguyenvanduocit/sitetrans/pkg/dispatch"
)

var (
	// ErrCleared rejects futures discarded by Clear.
	ErrCleared = errors.New("translation queue cleared")
	// ErrClosed rejects enqueues after Close.
	ErrClosed = errors.New("translation queue closed")
)

type Config struct {
	// Window is how long enqueued requests accumulate before dispatch.
	Window time.Duration
	// MinBatchSize is the threshold under which a flush skips batching
	// and sends single-item calls instead.
	MinBatchSize int
	// MaxGroupTokens is the estimated token ceiling per group.
	MaxGroupTokens int
}

// Queue buffers translation requests and owns them until dispatch. All
// state lives on the instance, so independent queues can coexist and be
// torn down in isolation.
type Queue struct {
	scheduler *dispatch.Scheduler
	cache     *cache.Cache
	cfg       Config
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	idle        *sync.Cond
	pending     []*batch.Request
	inflight    map[*batch.Request]struct{}
	timer       *time.Timer
	closed      bool
	dispatching int
}

func New(scheduler *dispatch.Scheduler, c *cache.Cache, cfg Config) *Queue {
	if cfg.Window <= 0 {
		cfg.Window = 50 * time.Millisecond
	}
	if cfg.MinBatchSize <= 0 {
		cfg.MinBatchSize = 2
	}
	if cfg.MaxGroupTokens <= 0 {
		cfg.MaxGroupTokens = batch.DefaultMaxGroupTokens
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		scheduler: scheduler,
		cache:     c,
		cfg:       cfg,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		inflight:  make(map[*batch.Request]struct{}),
	}
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Enqueue submits one fragment for translation and returns its future.
// A cache hit resolves immediately without joining any batch; otherwise
// the request waits for the accumulation window to fire. Each enqueue
// restarts the window, so a burst of fragments lands in one flush.
func (q *Queue) Enqueue(sourceText, pageContext string) *batch.Request {
	req := batch.NewRequest(sourceText, pageContext)

	if q.cache != nil {
		if translated, found := q.cache.Get(sourceText); found {
			req.Resolve(translated)
			return req
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		req.Reject(ErrClosed)
		return req
	}

	q.pending = append(q.pending, req)

	if q.timer == nil {
		q.timer = time.AfterFunc(q.cfg.Window, q.windowFired)
	} else {
		q.timer.Reset(q.cfg.Window)
	}

	return req
}

func (q *Queue) windowFired() {
	reqs := q.takePending()
	if len(reqs) == 0 {
		return
	}
	go q.process(reqs)
}

// Flush forces immediate processing of whatever is pending, bypassing the
// window, and waits for every dispatch in flight to finish. Used before
// the caller tears the site down.
func (q *Queue) Flush() {
	reqs := q.takePending()
	if len(reqs) > 0 {
		go q.process(reqs)
	}

	q.mu.Lock()
	for q.dispatching > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// Clear synchronously rejects every pending and in-flight future and
// discards the queue content. A dispatch already on the wire completes
// against the transport, but its result lands on an already-settled
// future and is discarded.
func (q *Queue) Clear() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	pending := q.pending
	q.pending = nil
	inflight := make([]*batch.Request, 0, len(q.inflight))
	for req := range q.inflight {
		inflight = append(inflight, req)
	}
	q.mu.Unlock()

	for _, req := range pending {
		req.Reject(ErrCleared)
	}
	for _, req := range inflight {
		req.Reject(ErrCleared)
	}
}

// Close clears the queue and rejects all future enqueues.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.Clear()
	q.cancel()

	q.mu.Lock()
	for q.dispatching > 0 {
		q.idle.Wait()
	}
	q.mu.Unlock()
}

// takePending atomically removes and returns the whole pending list. The
// returned requests count as an in-flight dispatch until process is done
// with them, so Flush can wait on the transition.
func (q *Queue) takePending() []*batch.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	reqs := q.pending
	q.pending = nil
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	for _, req := range reqs {
		q.inflight[req] = struct{}{}
	}
	if len(reqs) > 0 {
		q.dispatching++
	}
	return reqs
}

func (q *Queue) process(reqs []*batch.Request) {
	defer func() {
		q.mu.Lock()
		for _, req := range reqs {
			delete(q.inflight, req)
		}
		q.dispatching--
		q.idle.Broadcast()
		q.mu.Unlock()
	}()

	if len(reqs) < q.cfg.MinBatchSize {
		q.logger.Debug("below batching threshold, dispatching individually", "count", len(reqs))
		q.scheduler.DispatchEach(q.ctx, reqs)
		return
	}

	groups := batch.Group(reqs, q.cfg.MaxGroupTokens)
	q.logger.Debug("dispatching accumulated requests", "count", len(reqs), "groups", len(groups))
	q.scheduler.DispatchAll(q.ctx, groups)
}
