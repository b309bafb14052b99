package lookup

import (
	"regexp"
	"strings"
)

var (
	blankLineRuns = regexp.MustCompile(`\n\s*\n`)
	spaceRuns     = regexp.MustCompile(` +`)
)

// Redactor removes configured brand strings from rendered text.
type Redactor struct {
	patterns []*regexp.Regexp
}

func NewRedactor(terms []string) *Redactor {
	return &Redactor{patterns: compileTerms(terms)}
}

func compileTerms(terms []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		if term == "" {
			continue
		}
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(term)))
	}
	return patterns
}

// Redact removes every configured term plus extra, case-insensitively,
// then normalizes whitespace: runs of blank lines collapse to one, runs of
// spaces collapse to one, and the result is trimmed. Idempotent for a
// fixed deny-list.
func (r *Redactor) Redact(text string, extra []string) string {
	if text == "" {
		return text
	}
	for _, p := range r.patterns {
		text = p.ReplaceAllLiteralString(text, "")
	}
	for _, p := range compileTerms(extra) {
		text = p.ReplaceAllLiteralString(text, "")
	}
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
