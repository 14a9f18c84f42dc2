// Package reasoning strips hidden chain-of-thought spans from model output,
// both on a finished string and incrementally as a stream of chunks arrives.
package reasoning

import (
	"regexp"
	"strings"
)

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

var thinkPattern = regexp.MustCompile(`(?is)<think>.*?</think>\s*`)

// StripChainOfThought removes every complete <think>...</think> span
// (case-insensitive, spanning newlines) and returns the remainder trimmed.
func StripChainOfThought(text string) string {
	cleaned := thinkPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(cleaned)
}

// ExtractPublicSegments scans buffer for <think>...</think> spans and
// returns the text outside them as public, plus whatever remainder still
// needs more input to resolve: an unclosed <think> tag onward, a trailing
// partial "<think" prefix, a closed span followed only by whitespace, or ""
// if the whole buffer resolved cleanly. Whitespace after a closing tag is
// dropped, as StripChainOfThought does.
//
// Callers drive streaming output by keeping a rolling buffer of unemitted
// text, emitting public as it is returned, and carrying remainder into the
// next call.
func ExtractPublicSegments(buffer string) (public string, remainder string) {
	lower := strings.ToLower(buffer)
	var parts []string
	pos := 0
	length := len(buffer)

	for pos < length {
		openIdx := strings.Index(lower[pos:], openTag)
		if openIdx == -1 {
			end := length
			for k := len(openTag) - 1; k > 0; k-- {
				if strings.HasSuffix(lower[pos:], openTag[:k]) {
					end = length - k
					break
				}
			}
			parts = append(parts, buffer[pos:end])
			return strings.Join(parts, ""), buffer[end:]
		}
		openIdx += pos
		parts = append(parts, buffer[pos:openIdx])

		closeIdx := strings.Index(lower[openIdx+len(openTag):], closeTag)
		if closeIdx == -1 {
			return strings.Join(parts, ""), buffer[openIdx:]
		}
		closeIdx += openIdx + len(openTag)
		pos = closeIdx + len(closeTag)
		for pos < length && strings.IndexByte(" \t\n\f\r", buffer[pos]) >= 0 {
			pos++
		}
		if pos == length {
			return strings.Join(parts, ""), buffer[openIdx:]
		}
	}
	return strings.Join(parts, ""), ""
}

// scaffoldSentinels are provider-local chat-template markers that sometimes
// leak into a finalised reply when a runner doesn't cleanly terminate.
var scaffoldSentinels = []string{
	"<|im_start|>assistant",
	"<|im_end|>",
	"<|im_start|>",
}

// CleanPublicReply strips a fixed set of scaffolding sentinels from a
// finalised reply. Applied once, after StripChainOfThought.
func CleanPublicReply(text string) string {
	cleaned := text
	for _, sentinel := range scaffoldSentinels {
		cleaned = strings.ReplaceAll(cleaned, sentinel, "")
	}
	return strings.TrimSpace(cleaned)
}

// StreamFilter maintains the rolling buffer state needed to drive streaming
// think-block suppression across successive chunks (spec.md §4.F step 4).
type StreamFilter struct {
	buffer string
}

// Feed appends a raw delta to the internal buffer and returns the newly
// revealed public text since the previous call. Any unresolved tail (see
// ExtractPublicSegments) is retained internally for the next Feed.
func (f *StreamFilter) Feed(delta string) string {
	f.buffer += delta
	public, remainder := ExtractPublicSegments(f.buffer)
	f.buffer = remainder
	return public
}

// Pending returns the unresolved tail currently buffered (an open <think>
// tag with no close seen yet, a partial "<think" prefix, a closed span
// followed only by whitespace, or "").
func (f *StreamFilter) Pending() string {
	return f.buffer
}
