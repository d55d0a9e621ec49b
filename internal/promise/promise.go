// Package promise detects the textual completion marker agents emit to
// signal that a step or verification pass is done.
package promise

import "strings"

const (
	openTag  = "<promise>"
	closeTag = "</promise>"
)

// Detect reports whether output contains a promise marker whose inner
// text equals tag. Sentinel matching is case-insensitive and may span
// newlines; the inner text and tag are compared after collapsing
// whitespace runs to single spaces and trimming. Only the first marker
// in output is considered. Malformed or absent markers yield false.
func Detect(output, tag string) bool {
	lower := strings.ToLower(output)
	start := strings.Index(lower, openTag)
	if start < 0 {
		return false
	}
	innerStart := start + len(openTag)
	end := strings.Index(lower[innerStart:], closeTag)
	if end < 0 {
		return false
	}
	inner := output[innerStart : innerStart+end]
	return normalize(inner) == normalize(tag)
}

// Marker renders the delimited marker for a tag, suitable for
// embedding in a prompt instruction.
func Marker(tag string) string {
	return openTag + tag + closeTag
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
