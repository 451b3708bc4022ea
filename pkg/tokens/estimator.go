// Package tokens estimates how expensive a piece of text is to send to a
// language model. The estimate is a calibrated heuristic, not a real
// tokenizer: it can be off by up to 2x, so ceilings built on it are
// advisory.
package tokens

import "math"

const (
	cjkCost      = 2.0
	latinRunCost = 1.3
	otherCost    = 0.5
)

// Estimate returns the heuristic token cost of text. CJK ideographs count
// 2 units each, every maximal run of Latin letters counts 1.3 units, and
// any other character counts 0.5 units. The result is rounded up.
//
// The function is deterministic and monotone: appending characters never
// lowers the estimate.
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	var cost float64
	inLatinRun := false

	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			cost += cjkCost
			inLatinRun = false
		case isLatinLetter(r):
			if !inLatinRun {
				cost += latinRunCost
				inLatinRun = true
			}
		default:
			cost += otherCost
			inLatinRun = false
		}
	}

	return int(math.Ceil(cost))
}

func isLatinLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
