// Package dispatch turns grouped translation requests into settled
// futures. Groups go out under a sliding concurrency window; a failed
// group is retried, then degraded to per-item calls so one bad fragment
// can never sink its siblings.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nguyenvanduocit/sitetrans/pkg/batch"
	"github.com/nguyenvanduocit/sitetrans/pkg/cache"
	"github.com/nguyenvanduocit/sitetrans/pkg/parser"
	"github.com/nguyenvanduocit/sitetrans/pkg/transport"
)

type Config struct {
	// MaxInFlight bounds simultaneously dispatched groups.
	MaxInFlight int
	// RetryAttempts is the number of extra tries for a failed group.
	RetryAttempts int
	RetryDelay    time.Duration
	// Origin identifies the requesting site to the transport.
	Origin string
}

// Scheduler owns a group for the duration of one dispatch attempt,
// including retries and the per-item fallback.
type Scheduler struct {
	transport transport.Transport
	cache     *cache.Cache
	cfg       Config
	logger    *slog.Logger
}

func New(t transport.Transport, c *cache.Cache, cfg Config) *Scheduler {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 5
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	return &Scheduler{
		transport: t,
		cache:     c,
		cfg:       cfg,
		logger:    slog.Default(),
	}
}

// DispatchAll sends every group and blocks until all contained requests
// are settled. At most MaxInFlight groups are on the wire at once; a new
// one starts as soon as any one finishes. Failures never propagate as a
// return value, they end in rejected futures scoped to the requests that
// could not be salvaged.
func (s *Scheduler) DispatchAll(ctx context.Context, groups [][]*batch.Request) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxInFlight)

	for _, group := range groups {
		g.Go(func() error {
			s.dispatchGroup(ctx, group)
			return nil
		})
	}

	g.Wait()
}

// DispatchEach sends requests as independent single-item calls under the
// same concurrency window. Used when a flush holds too few requests to be
// worth the batch protocol.
func (s *Scheduler) DispatchEach(ctx context.Context, reqs []*batch.Request) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxInFlight)

	for _, req := range reqs {
		g.Go(func() error {
			s.dispatchSingle(ctx, req)
			return nil
		})
	}

	g.Wait()
}

// unit is one outbound line of a batch payload: a unique source text and
// every original request that should receive its result.
type unit struct {
	text     string
	requests []*batch.Request
}

func (s *Scheduler) dispatchGroup(ctx context.Context, group []*batch.Request) {
	if len(group) == 0 {
		return
	}
	if len(group) == 1 {
		s.dispatchSingle(ctx, group[0])
		return
	}

	units := dedupe(group)
	payload := buildPayload(units)
	pageContext := group[0].PageContext

	attempts := 1 + s.cfg.RetryAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := s.transport.Send(ctx, transport.Request{
			Type:    transport.TypeBatchTranslate,
			Payload: payload,
			Context: pageContext,
			Origin:  s.cfg.Origin,
			Count:   len(units),
		})
		if err == nil {
			entries, perr := parser.Parse(raw, len(units))
			if perr == nil {
				s.distribute(units, entries)
				return
			}
			s.logger.Warn("batch response unparseable", "attempt", attempt, "error", perr)
		} else {
			s.logger.Warn("batch dispatch failed", "attempt", attempt, "items", len(units), "error", err)
		}

		if attempt < attempts {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	// Degrade to per-item calls. A batch-sized failure often is exactly
	// that: too big, or one fragment confusing the model.
	s.logger.Warn("batch exhausted retries, falling back to per-item dispatch", "items", len(units))
	for _, u := range units {
		s.dispatchUnit(ctx, u)
	}
}

func (s *Scheduler) dispatchSingle(ctx context.Context, req *batch.Request) {
	s.dispatchUnit(ctx, &unit{text: req.SourceText, requests: []*batch.Request{req}})
}

func (s *Scheduler) dispatchUnit(ctx context.Context, u *unit) {
	raw, err := s.transport.Send(ctx, transport.Request{
		Type:    transport.TypeTranslate,
		Payload: u.text,
		Context: u.requests[0].PageContext,
		Origin:  s.cfg.Origin,
	})
	if err != nil {
		for _, req := range u.requests {
			req.Reject(fmt.Errorf("translate %q: %w", preview(u.text), err))
		}
		return
	}

	text := strings.TrimSpace(raw)
	if !plausible(u.text, text) {
		s.logger.Warn("implausible translation length, keeping source", "source_len", len(u.text), "translated_len", len(text))
		text = u.text
	}

	s.remember(u.text, text)
	for _, req := range u.requests {
		req.Resolve(text)
	}
}

// distribute hands each unit its parsed entry. A missing entry resolves
// to the unit's own source text: a parser gap must never leave a caller
// pending forever.
func (s *Scheduler) distribute(units []*unit, entries []parser.Translation) {
	if len(entries) != len(units) {
		s.logger.Warn("parsed count differs from sent count", "sent", len(units), "parsed", len(entries))
	}

	byIndex := make(map[int]string, len(entries))
	for _, e := range entries {
		byIndex[e.Index] = e.Text
	}

	for i, u := range units {
		text, ok := byIndex[i+1]
		switch {
		case !ok || strings.TrimSpace(text) == "":
			text = u.text
		case !plausible(u.text, text):
			s.logger.Warn("implausible translation length, keeping source", "index", i+1, "source_len", len(u.text), "translated_len", len(text))
			text = u.text
		}

		s.remember(u.text, text)
		for _, req := range u.requests {
			req.Resolve(text)
		}
	}
}

func (s *Scheduler) remember(source, translated string) {
	if s.cache == nil {
		return
	}
	s.cache.Set(source, translated)
}

// dedupe collapses requests sharing a source text into one outbound unit,
// preserving first-occurrence order. Every request lands in exactly one
// unit's fan-out list.
func dedupe(group []*batch.Request) []*unit {
	index := make(map[string]int, len(group))
	var units []*unit

	for _, req := range group {
		if i, seen := index[req.SourceText]; seen {
			units[i].requests = append(units[i].requests, req)
			continue
		}
		index[req.SourceText] = len(units)
		units = append(units, &unit{text: req.SourceText, requests: []*batch.Request{req}})
	}

	return units
}

func buildPayload(units []*unit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, u.text)
	}
	return b.String()
}

// plausible rejects translations whose length ratio versus the source is
// not believable: longer than 4x, or shorter than a sixth of a
// non-trivial source.
func plausible(source, translated string) bool {
	if translated == "" {
		return false
	}
	if len(translated) > len(source)*4 {
		return false
	}
	if len(source) > 20 && len(translated)*6 < len(source) {
		return false
	}
	return true
}

func preview(text string) string {
	if len(text) > 40 {
		return text[:40] + "..."
	}
	return text
}
