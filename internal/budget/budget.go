// Package budget provides token estimation and truncation for prompts sent to
// the language model. Because askdocs supports several backends with
// different tokenizers, it uses a conservative character heuristic:
// 1 token ≈ 4 characters.
package budget

import (
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxChunkTokens is the default budget for one chunk of context in
	// a map-phase prompt. Four chunks plus the answer fit an 8k-context model.
	DefaultMaxChunkTokens = 1200
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate shortens s so that Estimate(s) <= maxTokens. The cut lands on a
// rune boundary and, when possible, on the last whitespace before the limit.
// maxTokens <= 0 disables truncation.
func Truncate(s string, maxTokens int) string {
	if maxTokens <= 0 || Estimate(s) <= maxTokens {
		return s
	}
	limit := maxTokens*charsPerToken + charsPerToken - 1
	if limit > len(s) {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	cut := s[:limit]
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n\t")
}
