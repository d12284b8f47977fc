// Package budget estimates token counts for fragment sizing and prompt
// assembly. Tenants may run on different model backends with different
// tokenizers, so a single conservative heuristic is used everywhere:
// 1 token ≈ 4 characters. Over-estimating keeps fragments and prompts inside
// the real limits of every supported model.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role/separator tokens chat APIs add.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the default input budget for a generation
	// request (system prompt, retrieved context, history and question).
	DefaultMaxContextTokens = 6000
)

// Tokenizer counts the tokens in a string.
type Tokenizer func(s string) int

// Estimate returns a rough token count for s. Characters are counted as runes
// so accented text is not inflated by its UTF-8 encoding.
func Estimate(s string) int {
	chars := utf8.RuneCountInString(s)
	n := chars / charsPerToken
	if n == 0 && chars > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for msgs.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimHistory drops the oldest history messages until fixed + history fits in
// maxTokens. fixed holds the messages that are always sent (system prompt,
// context, question) and is never trimmed; when fixed alone exceeds the
// budget an empty history is returned.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
