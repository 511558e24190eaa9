// Package hooks generates and validates short marketing hooks for pin
// variations through an external text-completion service.
package hooks

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the hard character budget for a hook, spaces included.
const DefaultMaxChars = 50

// minHookLen rejects fragments too short to be a complete thought.
const minHookLen = 12

// badEndWords are connectors and stopwords a complete hook never ends on.
var badEndWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"from": true, "by": true, "with": true, "without": true, "into": true,
	"onto": true, "over": true, "under": true,
	"your": true, "you": true, "its": true, "it's": true, "their": true,
	"this": true, "that": true, "these": true, "those": true,
	"hidden": true,
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	wordTrimRe = regexp.MustCompile(`[^a-zA-Z']+`)
)

// OneLine normalizes to a single line: line breaks to spaces, whitespace
// collapsed, wrapping quotes stripped.
func OneLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"'`)
}

// looksIncomplete detects half-written hooks that read unfinished.
func looksIncomplete(hook string) bool {
	s := OneLine(hook)
	if s == "" || utf8.RuneCountInString(s) < minHookLen {
		return true
	}

	// Trailing punctuation fragments usually mean truncation.
	for _, suffix := range []string{",", ":", ";", "-", "—", "–"} {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}

	words := strings.Fields(s)
	last := strings.ToLower(wordTrimRe.ReplaceAllString(words[len(words)-1], ""))
	return badEndWords[last]
}

// IsGood reports whether a candidate hook satisfies all acceptance
// criteria. The recent set holds lowercased prior hooks to reject
// repeats against.
func IsGood(hook string, maxChars int, recent map[string]bool) bool {
	if strings.ContainsAny(hook, "\n\r") {
		return false
	}
	s := OneLine(hook)
	if s == "" || utf8.RuneCountInString(s) > maxChars || looksIncomplete(s) {
		return false
	}
	return !recent[strings.ToLower(s)]
}

// Clamp forces s under the character budget: single line, cut on a word
// boundary where possible, trailing punctuation and dangling connectors
// dropped.
func Clamp(s string, maxChars int) string {
	s = OneLine(s)
	if s == "" || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	runes := []rune(s)
	cut := strings.TrimRight(string(runes[:maxChars]), " ")

	// Prefer a word boundary unless it over-shortens.
	floor := maxChars * 6 / 10
	if floor < 10 {
		floor = 10
	}
	if idx := strings.LastIndex(cut, " "); idx >= floor {
		cut = strings.TrimRight(cut[:idx], " ")
	}

	cut = strings.TrimRight(cut, " ,.;:!-–—")

	words := strings.Fields(cut)
	if len(words) > 1 {
		last := strings.ToLower(wordTrimRe.ReplaceAllString(words[len(words)-1], ""))
		if badEndWords[last] {
			cut = strings.Join(words[:len(words)-1], " ")
		}
	}
	return cut
}

// RecentSet lowercases a recency window into the lookup form IsGood wants.
func RecentSet(recent []string) map[string]bool {
	set := make(map[string]bool, len(recent))
	for _, h := range recent {
		if s := OneLine(h); s != "" {
			set[strings.ToLower(s)] = true
		}
	}
	return set
}
