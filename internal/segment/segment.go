// Package segment splits extracted document text into ordered, bounded-size
// fragments for embedding. Short heading-like lines are recognised as section
// titles and attached to the fragment that follows them, so retrieval can
// group matches by section.
package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/54b3r/ragbot-go/internal/budget"
)

const (
	// DefaultMaxTokens is the fragment token ceiling when none is configured.
	DefaultMaxTokens = 500
	// DefaultTitleMaxChars is the longest line (in runes) treated as a title.
	DefaultTitleMaxChars = 60
)

// Fragment is one contiguous slice of a document.
type Fragment struct {
	// Title is the most recent section title at or before this fragment.
	// Empty when the document has no title before the fragment.
	Title string
	// Text is the fragment body, lines joined by "\n". A title that opens a
	// section is the first line of the text.
	Text string
	// Tokens is the tokenizer's count for Text.
	Tokens int
}

// Config controls fragment sizing and title detection.
type Config struct {
	// MaxTokens is the soft ceiling per fragment. Defaults to DefaultMaxTokens.
	MaxTokens int
	// TitleMaxChars is the maximum rune length of a title line.
	// Defaults to DefaultTitleMaxChars.
	TitleMaxChars int
	// Tokenizer counts tokens. Defaults to [budget.Estimate].
	Tokenizer budget.Tokenizer
}

// Segmenter splits text according to its Config. It holds no mutable state
// and is safe for concurrent use.
type Segmenter struct {
	cfg Config
}

// New constructs a Segmenter, filling zero fields of cfg with defaults.
func New(cfg Config) *Segmenter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TitleMaxChars <= 0 {
		cfg.TitleMaxChars = DefaultTitleMaxChars
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = budget.Estimate
	}
	return &Segmenter{cfg: cfg}
}

// MaxTokens returns the configured fragment ceiling.
func (s *Segmenter) MaxTokens() int { return s.cfg.MaxTokens }

// Segment splits content into fragments. It returns nil for empty or
// whitespace-only input, which callers treat as "no processable text".
//
// Every non-whitespace character of content appears in exactly one fragment,
// in input order. A fragment exceeds MaxTokens only when it consists of a
// single block that is larger than the ceiling on its own.
func (s *Segmenter) Segment(content string) []Fragment {
	blocks := splitBlocks(content)
	if len(blocks) == 0 {
		return nil
	}

	var (
		out     []Fragment
		lines   []string
		text    string
		title   string
		hasBody bool
	)

	flush := func() {
		if len(lines) == 0 {
			return
		}
		out = append(out, Fragment{Title: title, Text: text, Tokens: s.cfg.Tokenizer(text)})
		lines, text, hasBody = nil, "", false
	}

	// fits reports whether appending block keeps the fragment within budget.
	fits := func(block string) bool {
		if len(lines) == 0 {
			return true
		}
		return s.cfg.Tokenizer(text+"\n"+block) <= s.cfg.MaxTokens
	}

	add := func(block string) {
		lines = append(lines, block)
		if text == "" {
			text = block
		} else {
			text += "\n" + block
		}
	}

	for _, block := range blocks {
		if s.isTitle(block) {
			if hasBody || !fits(block) {
				flush()
			}
			title = block
			add(block)
			continue
		}

		if !fits(block) {
			flush()
		}
		add(block)
		hasBody = true
	}
	flush()

	return out
}

// isTitle reports whether block looks like a section heading.
func (s *Segmenter) isTitle(block string) bool {
	if utf8.RuneCountInString(block) > s.cfg.TitleMaxChars {
		return false
	}
	if !strings.ContainsFunc(block, unicode.IsLetter) {
		return false
	}
	if hasListMarker(block) {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(block)
	switch last {
	case '.', '!', '?', ';', ',':
		return false
	}
	return true
}

// hasListMarker reports whether line starts like a bullet or numbered item.
func hasListMarker(line string) bool {
	for _, p := range []string{"- ", "* ", "• ", "+ "} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	// "1. item" / "2) item"
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' '
}

// splitBlocks normalises line endings and returns the trimmed, non-empty lines.
func splitBlocks(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var blocks []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			blocks = append(blocks, line)
		}
	}
	return blocks
}
