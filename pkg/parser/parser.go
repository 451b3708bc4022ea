// Package parser recovers an ordered list of translations from whatever a
// language model actually returned. Models are asked for a strict JSON
// shape but routinely wrap it in prose or code fences, truncate it
// mid-object, or ignore the instruction entirely, so parsing runs through
// a fixed ladder of strategies and stops at the first one that yields at
// least one entry.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Translation is one recovered entry. Index is 1-based and refers to the
// position within the batch that was sent, not the global request stream.
type Translation struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type payload struct {
	Translations []Translation `json:"translations"`
}

// Error carries the diagnostics of a total parse failure. It is an
// expected, recoverable condition for callers, never a panic.
type Error struct {
	ContentLength int
	Strategies    []string
	Preview       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("no translations recovered (content length %d, tried %s, preview %q)",
		e.ContentLength, strings.Join(e.Strategies, ", "), e.Preview)
}

var (
	markerRe        = regexp.MustCompile(`\[(\d+)\]\s*`)
	leadingMarkerRe = regexp.MustCompile(`^\s*\[\d+\]\s*`)
	quotedIndexRe   = regexp.MustCompile(`"index"\s*:\s*"(\d+)"`)
	codeFenceRe     = regexp.MustCompile("(?m)^\\s*```(?:json)?\\s*$")
)

// Parse turns a raw model response into translations ordered by index.
// raw is either the response string or an already-decoded structure.
// expectedCount is the number of items that were sent; a mismatch is the
// caller's problem to log, partial results are still returned.
func Parse(raw any, expectedCount int) ([]Translation, error) {
	content, isString := raw.(string)
	if !isString {
		if entries := parseStructured(raw); len(entries) > 0 {
			return finish(entries), nil
		}
		return nil, &Error{Strategies: []string{"structured"}}
	}

	tried := []string{}

	cleaned := cleanContent(content)
	tried = append(tried, "cleaned-json")
	if entries := parseJSON(cleaned); len(entries) > 0 {
		return finish(entries), nil
	}

	if strings.Contains(content, `"translations"`) {
		tried = append(tried, "truncation-repair")
		if entries := repairTruncated(content); len(entries) > 0 {
			return finish(entries), nil
		}
	}

	tried = append(tried, "line-markers")
	if entries := parseLineMarkers(content); len(entries) > 0 {
		return finish(entries), nil
	}

	preview := cleaned
	if len(preview) > 120 {
		preview = preview[:120]
	}
	return nil, &Error{
		ContentLength: len(content),
		Strategies:    tried,
		Preview:       preview,
	}
}

// parseStructured handles a transport that already decoded the response.
// The value is round-tripped through JSON to validate the expected shape.
func parseStructured(raw any) []Translation {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	return parseJSON(string(encoded))
}

func parseJSON(content string) []Translation {
	var p payload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil
	}
	return p.Translations
}

// cleanContent strips markdown code fences and surrounding prose, keeping
// the slice between the first '{' and the last '}'.
func cleanContent(content string) string {
	content = codeFenceRe.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return content
	}
	return content[start : end+1]
}

// repairTruncated recovers the complete objects of a translations array
// that was cut off mid-output. It walks the array character by character
// tracking brace depth and quoted-string state (escaped quotes included),
// collects every balanced {...} object, and drops the trailing incomplete
// fragment. Objects missing an index or a text field are discarded, and
// an index emitted as a quoted numeral is coerced back to a number.
func repairTruncated(content string) []Translation {
	arrayStart := findArrayStart(content)
	if arrayStart == -1 {
		return nil
	}

	var objects []string
	depth := 0
	inString := false
	escaped := false
	objStart := -1

scan:
	for i := arrayStart; i < len(content); i++ {
		c := content[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				objStart = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && objStart != -1 {
				objects = append(objects, content[objStart:i+1])
				objStart = -1
			}
		case ']':
			if depth == 0 {
				break scan
			}
		}
	}

	var entries []Translation
	for _, obj := range objects {
		obj = quotedIndexRe.ReplaceAllString(obj, `"index": $1`)

		var probe struct {
			Index *int    `json:"index"`
			Text  *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(obj), &probe); err != nil {
			continue
		}
		if probe.Index == nil || probe.Text == nil {
			continue
		}
		entries = append(entries, Translation{Index: *probe.Index, Text: *probe.Text})
	}

	return entries
}

func findArrayStart(content string) int {
	key := strings.Index(content, `"translations"`)
	if key == -1 {
		return -1
	}
	offset := strings.Index(content[key:], "[")
	if offset == -1 {
		return -1
	}
	return key + offset + 1
}

// parseLineMarkers is the last resort for models that answer in the
// "[n] translated line" convention instead of JSON. Each [n] marker opens
// an entry running until the next marker or end of input.
func parseLineMarkers(content string) []Translation {
	matches := markerRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	var entries []Translation
	for i, m := range matches {
		index, err := strconv.Atoi(content[m[2]:m[3]])
		if err != nil {
			continue
		}

		textStart := m[1]
		textEnd := len(content)
		if i+1 < len(matches) {
			textEnd = matches[i+1][0]
		}

		text := strings.TrimSpace(content[textStart:textEnd])
		if text == "" {
			continue
		}
		entries = append(entries, Translation{Index: index, Text: text})
	}

	return entries
}

// finish orders entries by index and scrubs any [n] marker a model echoed
// back inside the translated text. The marker belongs to the request
// protocol, not the translation.
func finish(entries []Translation) []Translation {
	for i := range entries {
		entries[i].Text = strings.TrimSpace(leadingMarkerRe.ReplaceAllString(entries[i].Text, ""))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Index < entries[j].Index
	})
	return entries
}
