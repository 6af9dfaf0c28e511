// Package detector decides when article markup needs a headless render.
package detector

import (
	"bytes"
)

// Heuristic flags markup that looks like a client-rendered shell.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

var imgTag = []byte("<img")

// ShouldPromote reports whether body should be fetched again through a
// browser. Markup that already carries image tags is trusted as-is.
func (h *Heuristic) ShouldPromote(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, imgTag) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh expects lowercased markup.
func scriptDensityHigh(lower []byte) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	openTag := []byte("<script")
	closeTag := []byte("</script>")
	covered := 0
	pos := 0

	for pos < total {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagEnd := bytes.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			// Unterminated tag swallows the rest of the document.
			covered += total - start
			break
		}
		contentStart := start + tagEnd + 1

		next := total
		if end := bytes.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}

	return covered*100/total >= 25
}
