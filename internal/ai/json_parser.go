// Package ai provides the language-model oracles used to triage feedback.
package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	fenceWholeRegex = regexp.MustCompile("(?s)^`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}\\s*$")
	fenceAnyRegex   = regexp.MustCompile("(?s)`{3}(?:json|javascript|js)?\\s*\\n?(.*?)\\n?`{3}")

	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	// Comments only count at the start of a line so URLs inside strings survive.
	lineCommentRegex  = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)

	objectRegex = regexp.MustCompile(`(?s)\{.*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[.*\]`)
)

// maxParseInput bounds the text handed to the parser.
const maxParseInput = 10 * 1024 * 1024

// ParseResult is the outcome of Parse. On failure Error says why and
// OriginalText keeps the raw oracle output for use as a rationale.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// Parse decodes model output into T. Models wrap JSON in code fences, leave
// trailing commas and surround it with prose, so each cleanup stage is tried
// in turn: as-is, without fences, repaired, then extracted from the text.
// label prefixes error messages.
func Parse[T any](text string, label string) ParseResult[T] {
	fail := func(msg string) ParseResult[T] {
		if label != "" {
			msg = label + ": " + msg
		}
		return ParseResult[T]{Error: msg, OriginalText: text}
	}

	if len(text) > maxParseInput {
		return fail(fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxParseInput))
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fail("empty input")
	}

	unfenced := removeCodeFences(trimmed)
	repaired := repairJSON(unfenced)
	for i, candidate := range []string{trimmed, unfenced, repaired, extractJSON(repaired)} {
		if candidate == "" {
			continue
		}
		var data T
		err := json.Unmarshal([]byte(candidate), &data)
		if err == nil {
			return ParseResult[T]{Success: true, Data: data, OriginalText: text}
		}
		if i == 0 {
			slog.Debug("ai: direct JSON parse failed, trying cleanup",
				"label", label, "error", err, "text_preview", truncateString(text, 100))
		}
	}
	return fail("all JSON parsing strategies failed")
}

// ParseOrDefault parses JSON and returns fallback on error.
func ParseOrDefault[T any](text string, fallback T, label string) T {
	result := Parse[T](text, label)
	if result.Success {
		return result.Data
	}
	slog.Debug("ai: JSON parse failed, using fallback", "error", result.Error)
	return fallback
}

// removeCodeFences strips markdown fences, preferring a fence that wraps the
// whole text, and single backticks around the whole text.
func removeCodeFences(text string) string {
	cleaned := fenceWholeRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = fenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if len(cleaned) >= 2 && strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	return strings.TrimSpace(cleaned)
}

// repairJSON drops trailing commas and comments and quotes bare keys.
// Single quotes are left alone; apostrophes inside strings are common.
func repairJSON(text string) string {
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = lineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = blockCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls the outermost object or array out of mixed content. When
// the text itself starts with a bracket that kind wins, so an array of
// objects is not cut down to its first element.
func extractJSON(text string) string {
	order := []*regexp.Regexp{objectRegex, arrayRegex}
	if strings.HasPrefix(text, "[") {
		order = []*regexp.Regexp{arrayRegex, objectRegex}
	}
	for _, re := range order {
		if match := re.FindString(text); match != "" {
			return match
		}
	}
	return ""
}
