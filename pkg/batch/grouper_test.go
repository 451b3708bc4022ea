package batch

import (
	"strings"
	"testing"

	"github.com/nguyenvanduocit/sitetrans/pkg/tokens"
)

func requestsFromTexts(texts ...string) []*Request {
	reqs := make([]*Request, 0, len(texts))
	for _, text := range texts {
		reqs = append(reqs, NewRequest(text, "test page"))
	}
	return reqs
}

func TestGroupEmptyInput(t *testing.T) {
	if groups := Group(nil, 100); groups != nil {
		t.Errorf("Group(nil) = %v, want nil", groups)
	}
	if groups := Group([]*Request{}, 100); groups != nil {
		t.Errorf("Group(empty) = %v, want nil", groups)
	}
}

func TestGroupRespectsCeiling(t *testing.T) {
	reqs := requestsFromTexts(
		"one short line",
		"another short line",
		strings.Repeat("word ", 200),
		"tail",
	)

	ceiling := 50
	groups := Group(reqs, ceiling)

	for gi, group := range groups {
		total := 0
		for _, req := range group {
			total += tokens.Estimate(req.SourceText)
		}
		if total > ceiling && len(group) > 1 {
			t.Errorf("group %d total %d exceeds ceiling %d with %d members", gi, total, ceiling, len(group))
		}
	}
}

func TestGroupOversizedRequestGetsOwnGroup(t *testing.T) {
	huge := strings.Repeat("lots of text here ", 500)
	reqs := requestsFromTexts("small", huge, "also small")

	groups := Group(reqs, 30)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if len(groups[1]) != 1 || groups[1][0].SourceText != huge {
		t.Errorf("oversized request should be alone in its own group")
	}
}

func TestGroupPreservesOrder(t *testing.T) {
	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"}
	reqs := requestsFromTexts(texts...)

	groups := Group(reqs, 5)

	var flattened []string
	for _, group := range groups {
		for _, req := range group {
			flattened = append(flattened, req.SourceText)
		}
	}

	if len(flattened) != len(texts) {
		t.Fatalf("flattened %d requests, want %d", len(flattened), len(texts))
	}
	for i, text := range texts {
		if flattened[i] != text {
			t.Errorf("position %d: got %q, want %q", i, flattened[i], text)
		}
	}
}

func TestGroupSingleGroupWhenUnderCeiling(t *testing.T) {
	reqs := requestsFromTexts("a", "b", "c")
	groups := Group(reqs, DefaultMaxGroupTokens)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if len(groups[0]) != 3 {
		t.Errorf("got %d requests in group, want 3", len(groups[0]))
	}
}
