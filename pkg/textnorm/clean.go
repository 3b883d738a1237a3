// Package textnorm implements the deterministic text normalization shared by
// ingestion, consolidation and retrieval: cleaning, normalized-key derivation,
// token filtering, lemmatization and a small lexicon-based POS tagger.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean strips control characters other than tab and newline, applies NFKC,
// and collapses whitespace: a run containing a newline becomes "\n", any other
// run becomes a single space. The result is trimmed. Clean is idempotent.
func Clean(s string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	nfkc := norm.NFKC.String(stripped)

	var b strings.Builder
	b.Grow(len(nfkc))
	inSpace, sawNewline := false, false
	flush := func() {
		if !inSpace {
			return
		}
		if sawNewline {
			b.WriteByte('\n')
		} else {
			b.WriteByte(' ')
		}
		inSpace, sawNewline = false, false
	}
	for _, r := range nfkc {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			inSpace = true
			if r == '\n' {
				sawNewline = true
			}
			continue
		}
		flush()
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// NormalizedKey derives the dedup key of a glyph name: NFKC, lowercase, every
// maximal run of non-alphanumerics replaced by one space, trimmed.
// NormalizedKey(NormalizedKey(s)) == NormalizedKey(s) for all s.
func NormalizedKey(name string) string {
	s := norm.NFKC.String(name)
	s = strings.ToLower(s)
	// Lowercasing can leave sequences that NFKC would rewrite (e.g. a dotted
	// capital I becomes i + combining dot); renormalize before collapsing.
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// NonAlnumRatio returns the share of runes in s that are neither letters,
// digits nor spaces. Empty input yields 0.
func NonAlnumRatio(s string) float64 {
	total, other := 0, 0
	for _, r := range s {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			continue
		}
		other++
	}
	if total == 0 {
		return 0
	}
	return float64(other) / float64(total)
}
