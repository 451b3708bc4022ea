package batch

import "github.com/nguyenvanduocit/sitetrans/pkg/tokens"

// DefaultMaxGroupTokens is the default token ceiling per group.
const DefaultMaxGroupTokens = 4000

// Group partitions requests into groups whose summed estimated token cost
// stays under maxTokens. Greedy first-fit in arrival order: a request that
// alone exceeds the ceiling gets its own group rather than being dropped
// or truncated. Concatenating the groups reproduces the input order, which
// index mapping downstream relies on.
func Group(requests []*Request, maxTokens int) [][]*Request {
	if len(requests) == 0 {
		return nil
	}

	if maxTokens <= 0 {
		maxTokens = DefaultMaxGroupTokens
	}

	var groups [][]*Request
	var current []*Request
	currentTokens := 0

	for _, req := range requests {
		cost := tokens.Estimate(req.SourceText)

		if cost > maxTokens {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
				currentTokens = 0
			}
			groups = append(groups, []*Request{req})
			continue
		}

		if currentTokens+cost > maxTokens && len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}

		current = append(current, req)
		currentTokens += cost
	}

	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}
