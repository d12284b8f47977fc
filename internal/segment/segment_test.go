package segment

import (
	"strings"
	"testing"
	"unicode"
)

// wordCount is a deterministic tokenizer for tests: one token per word.
func wordCount(s string) int { return len(strings.Fields(s)) }

// stripSpace removes all whitespace so coverage can be compared exactly.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func Test_Segment_EmptyInput(t *testing.T) {
	t.Parallel()
	s := New(Config{})
	for _, in := range []string{"", "   ", "\n\n\t\r\n"} {
		if got := s.Segment(in); len(got) != 0 {
			t.Errorf("Segment(%q) = %d fragments, want 0", in, len(got))
		}
	}
}

func Test_Segment_CoversAllContent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Contact: support@x.com\n\nHours: 9-5",
		"Pricing\n\nThe basic plan costs ten dollars per month and includes support.\nThe pro plan adds priority routing for every ticket you open.\n\nRefunds\nRefunds are processed within five business days of the request.",
		"- first item in the list\n- second item in the list\n1. numbered entry here\r\n2) another numbered entry",
		strings.Repeat("word ", 300),
		"Título\n\nLa información está disponible en la sección de ayuda del portal.",
	}

	s := New(Config{MaxTokens: 12, Tokenizer: wordCount})
	for _, in := range inputs {
		frags := s.Segment(in)
		var joined strings.Builder
		for _, f := range frags {
			joined.WriteString(f.Text)
		}
		if got, want := stripSpace(joined.String()), stripSpace(in); got != want {
			t.Errorf("coverage mismatch for %q:\n got  %q\n want %q", in, got, want)
		}
	}
}

func Test_Segment_RespectsCeiling(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 40 {
		b.WriteString("this body line has exactly eight words in it.\n")
		if i%7 == 0 {
			b.WriteString("\nSection Heading\n\n")
		}
	}

	const max = 20
	s := New(Config{MaxTokens: max, Tokenizer: wordCount})
	frags := s.Segment(b.String())
	if len(frags) < 2 {
		t.Fatalf("expected several fragments, got %d", len(frags))
	}
	for i, f := range frags {
		if f.Tokens > max {
			t.Errorf("fragment %d has %d tokens, ceiling %d", i, f.Tokens, max)
		}
		if f.Tokens != wordCount(f.Text) {
			t.Errorf("fragment %d token count %d does not match text", i, f.Tokens)
		}
	}
}

func Test_Segment_OversizedBlockIsKeptWhole(t *testing.T) {
	t.Parallel()
	long := strings.TrimSpace(strings.Repeat("token ", 50)) + "."
	s := New(Config{MaxTokens: 10, Tokenizer: wordCount})

	frags := s.Segment("Intro line that is a normal sentence.\n" + long + "\nTail sentence here.")
	if len(frags) != 3 {
		t.Fatalf("want 3 fragments, got %d: %+v", len(frags), frags)
	}
	if frags[1].Text != long {
		t.Errorf("oversized block was altered: %q", frags[1].Text)
	}
	if frags[1].Tokens <= 10 {
		t.Errorf("expected oversized token count, got %d", frags[1].Tokens)
	}
}

func Test_Segment_TitlesAttachToFollowingFragment(t *testing.T) {
	t.Parallel()

	in := "Shipping\n\nOrders ship within two days of payment.\n\nReturns\n\nItems may be returned within thirty days."
	s := New(Config{MaxTokens: 100, Tokenizer: wordCount})
	frags := s.Segment(in)

	if len(frags) != 2 {
		t.Fatalf("want 2 fragments, got %d: %+v", len(frags), frags)
	}
	cases := []struct {
		title, prefix string
	}{
		{"Shipping", "Shipping\nOrders ship"},
		{"Returns", "Returns\nItems may"},
	}
	for i, tc := range cases {
		if frags[i].Title != tc.title {
			t.Errorf("fragment %d title: want %q, got %q", i, tc.title, frags[i].Title)
		}
		if !strings.HasPrefix(frags[i].Text, tc.prefix) {
			t.Errorf("fragment %d text: want prefix %q, got %q", i, tc.prefix, frags[i].Text)
		}
	}
}

func Test_Segment_ContinuationInheritsTitle(t *testing.T) {
	t.Parallel()

	in := "Warranty\n" +
		"The warranty covers manufacturing defects for one year.\n" +
		"Accidental damage is excluded from the standard warranty.\n" +
		"Extended coverage can be purchased at checkout time."
	s := New(Config{MaxTokens: 12, Tokenizer: wordCount})
	frags := s.Segment(in)

	if len(frags) < 2 {
		t.Fatalf("expected the section to span fragments, got %d", len(frags))
	}
	for i, f := range frags {
		if f.Title != "Warranty" {
			t.Errorf("fragment %d title: want Warranty, got %q", i, f.Title)
		}
	}
	if strings.HasPrefix(frags[1].Text, "Warranty") {
		t.Errorf("title must not be re-injected into continuation: %q", frags[1].Text)
	}
}

func Test_Segment_Deterministic(t *testing.T) {
	t.Parallel()
	in := "Heading\nBody sentence one.\nBody sentence two.\n\nOther\nMore body text."
	s := New(Config{MaxTokens: 5, Tokenizer: wordCount})
	a, b := s.Segment(in), s.Segment(in)
	if len(a) != len(b) {
		t.Fatalf("fragment counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("fragment %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func Test_isTitle(t *testing.T) {
	t.Parallel()
	s := New(Config{TitleMaxChars: 30})

	tests := []struct {
		line string
		want bool
	}{
		{"Pricing", true},
		{"Contact: support@x.com", true},
		{"Frequently asked questions:", true},
		{"This is a sentence.", false},
		{"Is this a question?", false},
		{"- bullet point", false},
		{"3. numbered step", false},
		{"2024-01-01", false},
		{"A heading that is definitely far too long to count", false},
	}
	for _, tc := range tests {
		if got := s.isTitle(tc.line); got != tc.want {
			t.Errorf("isTitle(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
