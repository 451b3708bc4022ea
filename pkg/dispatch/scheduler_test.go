package dispatch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nguyenvanduocit/sitetrans/pkg/batch"
	"github.com/nguyenvanduocit/sitetrans/pkg/transport"
)

// fakeTransport scripts a transport response per call.
type fakeTransport struct {
	mu       sync.Mutex
	requests []transport.Request
	respond  func(req transport.Request) (string, error)
}

func (f *fakeTransport) Send(_ context.Context, req transport.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeTransport) sent() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.Request(nil), f.requests...)
}

var payloadLineRe = regexp.MustCompile(`\[(\d+)\] (.+)`)

// echoBatch answers any payload with a well-formed JSON response that
// uppercases every fragment.
func echoBatch(req transport.Request) (string, error) {
	if req.Type == transport.TypeTranslate {
		return strings.ToUpper(req.Payload), nil
	}

	var entries []string
	for _, m := range payloadLineRe.FindAllStringSubmatch(req.Payload, -1) {
		entries = append(entries, fmt.Sprintf(`{"index":%s,"text":"%s"}`, m[1], strings.ToUpper(m[2])))
	}
	return `{"translations":[` + strings.Join(entries, ",") + `]}`, nil
}

func waitAll(t *testing.T, reqs []*batch.Request) []batch.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make([]batch.Result, len(reqs))
	for i, req := range reqs {
		text, err := req.Wait(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("request %d never settled", i)
		}
		results[i] = batch.Result{Text: text, Err: err}
	}
	return results
}

func TestDispatchAllResolvesEveryRequest(t *testing.T) {
	ft := &fakeTransport{respond: echoBatch}
	s := New(ft, nil, Config{})

	reqs := []*batch.Request{
		batch.NewRequest("alpha", "Page"),
		batch.NewRequest("beta", "Page"),
		batch.NewRequest("gamma", "Page"),
	}

	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})

	results := waitAll(t, reqs)
	want := []string{"ALPHA", "BETA", "GAMMA"}
	for i, res := range results {
		if res.Err != nil {
			t.Errorf("request %d rejected: %v", i, res.Err)
		}
		if res.Text != want[i] {
			t.Errorf("request %d = %q, want %q", i, res.Text, want[i])
		}
	}
}

func TestDispatchDedupFanOut(t *testing.T) {
	ft := &fakeTransport{respond: echoBatch}
	s := New(ft, nil, Config{})

	reqs := []*batch.Request{
		batch.NewRequest("same", "Page"),
		batch.NewRequest("one", "Page"),
		batch.NewRequest("same", "Page"),
		batch.NewRequest("two", "Page"),
		batch.NewRequest("same", "Page"),
	}

	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	results := waitAll(t, reqs)

	sent := ft.sent()
	if len(sent) != 1 {
		t.Fatalf("made %d transport calls, want 1", len(sent))
	}
	if sent[0].Count != 3 {
		t.Errorf("batch count = %d, want 3 unique items", sent[0].Count)
	}
	if got := strings.Count(sent[0].Payload, "same"); got != 1 {
		t.Errorf("payload contains duplicate text %d times, want 1", got)
	}

	for _, i := range []int{0, 2, 4} {
		if results[i].Text != "SAME" {
			t.Errorf("duplicate request %d = %q, want SAME", i, results[i].Text)
		}
	}
	if results[1].Text != "ONE" || results[3].Text != "TWO" {
		t.Errorf("unique requests resolved to %q, %q", results[1].Text, results[3].Text)
	}
}

func TestDispatchPayloadFormat(t *testing.T) {
	ft := &fakeTransport{respond: echoBatch}
	s := New(ft, nil, Config{Origin: "example.com"})

	reqs := []*batch.Request{
		batch.NewRequest("first line", "My Page"),
		batch.NewRequest("second line", "My Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	waitAll(t, reqs)

	sent := ft.sent()
	if len(sent) != 1 {
		t.Fatalf("made %d transport calls, want 1", len(sent))
	}
	if sent[0].Payload != "[1] first line\n\n[2] second line" {
		t.Errorf("payload = %q", sent[0].Payload)
	}
	if sent[0].Context != "My Page" {
		t.Errorf("context = %q, want My Page", sent[0].Context)
	}
	if sent[0].Origin != "example.com" {
		t.Errorf("origin = %q, want example.com", sent[0].Origin)
	}
}

func TestDispatchFallsBackToPerItem(t *testing.T) {
	var batchCalls atomic.Int32
	ft := &fakeTransport{respond: func(req transport.Request) (string, error) {
		if req.Type == transport.TypeBatchTranslate {
			batchCalls.Add(1)
			return "", errors.New("boom")
		}
		return strings.ToUpper(req.Payload), nil
	}}
	s := New(ft, nil, Config{RetryAttempts: 1, RetryDelay: time.Millisecond})

	reqs := []*batch.Request{
		batch.NewRequest("aaa", "Page"),
		batch.NewRequest("bbb", "Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	results := waitAll(t, reqs)

	if got := batchCalls.Load(); got != 2 {
		t.Errorf("batch attempted %d times, want 2 (initial + one retry)", got)
	}
	if results[0].Text != "AAA" || results[1].Text != "BBB" {
		t.Errorf("per-item fallback results: %q, %q", results[0].Text, results[1].Text)
	}
}

func TestDispatchFailSoftWhenTransportAlwaysFails(t *testing.T) {
	ft := &fakeTransport{respond: func(transport.Request) (string, error) {
		return "", errors.New("network down")
	}}
	s := New(ft, nil, Config{RetryAttempts: 1, RetryDelay: time.Millisecond})

	reqs := []*batch.Request{
		batch.NewRequest("x", "Page"),
		batch.NewRequest("y", "Page"),
		batch.NewRequest("z", "Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})

	for i, res := range waitAll(t, reqs) {
		if res.Err == nil {
			t.Errorf("request %d should have been rejected", i)
		}
	}
}

func TestDispatchUnparseableFallsBackToPerItem(t *testing.T) {
	ft := &fakeTransport{respond: func(req transport.Request) (string, error) {
		if req.Type == transport.TypeBatchTranslate {
			return "sorry, no json today", nil
		}
		return strings.ToUpper(req.Payload), nil
	}}
	s := New(ft, nil, Config{RetryAttempts: 0})

	reqs := []*batch.Request{
		batch.NewRequest("left", "Page"),
		batch.NewRequest("right", "Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	results := waitAll(t, reqs)

	if results[0].Text != "LEFT" || results[1].Text != "RIGHT" {
		t.Errorf("results: %q, %q", results[0].Text, results[1].Text)
	}
}

func TestDispatchMissingEntryResolvesToSource(t *testing.T) {
	ft := &fakeTransport{respond: func(req transport.Request) (string, error) {
		// answer only the first of two fragments
		return `{"translations":[{"index":1,"text":"UNO"}]}`, nil
	}}
	s := New(ft, nil, Config{})

	reqs := []*batch.Request{
		batch.NewRequest("one", "Page"),
		batch.NewRequest("two", "Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	results := waitAll(t, reqs)

	if results[0].Err != nil || results[0].Text != "UNO" {
		t.Errorf("request 0 = %+v, want UNO", results[0])
	}
	if results[1].Err != nil || results[1].Text != "two" {
		t.Errorf("request 1 = %+v, want its own source text", results[1])
	}
}

func TestDispatchImplausibleLengthKeepsSource(t *testing.T) {
	long := strings.Repeat("!", 500)
	ft := &fakeTransport{respond: func(req transport.Request) (string, error) {
		return fmt.Sprintf(`{"translations":[{"index":1,"text":"%s"},{"index":2,"text":"ok"}]}`, long), nil
	}}
	s := New(ft, nil, Config{})

	reqs := []*batch.Request{
		batch.NewRequest("short", "Page"),
		batch.NewRequest("kept", "Page"),
	}
	s.DispatchAll(context.Background(), [][]*batch.Request{reqs})
	results := waitAll(t, reqs)

	if results[0].Text != "short" {
		t.Errorf("implausibly long entry should fall back to source, got %q", results[0].Text[:20])
	}
	if results[1].Text != "ok" {
		t.Errorf("plausible sibling = %q, want ok", results[1].Text)
	}
}

func TestDispatchSlidingWindowBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	ft := &fakeTransport{respond: func(req transport.Request) (string, error) {
		current := inFlight.Add(1)
		for {
			p := peak.Load()
			if current <= p || peak.CompareAndSwap(p, current) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return echoBatch(req)
	}}
	s := New(ft, nil, Config{MaxInFlight: 2})

	var groups [][]*batch.Request
	var all []*batch.Request
	for g := 0; g < 6; g++ {
		group := []*batch.Request{
			batch.NewRequest(fmt.Sprintf("g%d-a", g), "Page"),
			batch.NewRequest(fmt.Sprintf("g%d-b", g), "Page"),
		}
		groups = append(groups, group)
		all = append(all, group...)
	}

	s.DispatchAll(context.Background(), groups)
	waitAll(t, all)

	if p := peak.Load(); p > 2 {
		t.Errorf("peak in-flight groups = %d, want <= 2", p)
	}
}

func TestDispatchEach(t *testing.T) {
	ft := &fakeTransport{respond: echoBatch}
	s := New(ft, nil, Config{})

	reqs := []*batch.Request{
		batch.NewRequest("solo one", "Page"),
		batch.NewRequest("solo two", "Page"),
	}
	s.DispatchEach(context.Background(), reqs)
	results := waitAll(t, reqs)

	for _, sent := range ft.sent() {
		if sent.Type != transport.TypeTranslate {
			t.Errorf("request type = %q, want single-item calls", sent.Type)
		}
	}
	if results[0].Text != "SOLO ONE" || results[1].Text != "SOLO TWO" {
		t.Errorf("results: %q, %q", results[0].Text, results[1].Text)
	}
}
