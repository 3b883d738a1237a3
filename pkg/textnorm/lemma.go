package textnorm

import "strings"

// suffixRule rewrites a trailing suffix. Candidates produced by a rule are
// accepted only when they are dictionary lemmas, unless fallback is set.
type suffixRule struct {
	suffix   string
	replace  []string
	minStem  int
	fallback bool
}

// Rules are tried in order; the first candidate found in the dictionary wins.
var suffixRules = []suffixRule{ //nolint:gochecknoglobals // static rule table
	{suffix: "ies", replace: []string{"y"}, minStem: 2, fallback: true},
	{suffix: "ied", replace: []string{"y"}, minStem: 2},
	{suffix: "iness", replace: []string{"y"}, minStem: 2},
	{suffix: "ing", replace: []string{"", "e"}, minStem: 2},
	{suffix: "ed", replace: []string{"", "e"}, minStem: 2},
	{suffix: "er", replace: []string{"", "e"}, minStem: 3},
	{suffix: "ly", replace: []string{"", "le"}, minStem: 3},
	{suffix: "es", replace: []string{"", "e"}, minStem: 2},
	{suffix: "s", replace: []string{""}, minStem: 3, fallback: true},
}

// Lemma maps a lowercase token to its lemma. Resolution order: irregular
// forms, dictionary hits, suffix rules that land on a dictionary lemma
// (with consonant undoubling), the negation prefix "un" over a known lemma,
// and finally the conservative plural fallbacks. Unknown words come back
// unchanged, so Lemma is idempotent over its own output.
func (a *Analyzer) Lemma(tok string) string {
	tok = strings.ToLower(tok)
	if l, ok := a.lemmas[tok]; ok {
		return l
	}
	if a.Known(tok) {
		return tok
	}
	if l, ok := a.suffixLemma(tok); ok {
		return l
	}
	if rest, ok := strings.CutPrefix(tok, "un"); ok && len(rest) > a.minLength {
		if l, ok := a.lemmas[rest]; ok {
			return l
		}
		if a.Known(rest) {
			return rest
		}
		if l, ok := a.suffixLemma(rest); ok {
			return l
		}
	}
	return a.fallbackLemma(tok)
}

func (a *Analyzer) suffixLemma(tok string) (string, bool) {
	for _, rule := range suffixRules {
		stem, ok := strings.CutSuffix(tok, rule.suffix)
		if !ok || len(stem) < rule.minStem {
			continue
		}
		for _, rep := range rule.replace {
			if cand := stem + rep; a.Known(cand) {
				return cand, true
			}
		}
		// stopped -> stopp -> stop
		if n := len(stem); n >= 3 && stem[n-1] == stem[n-2] && !isVowel(stem[n-1]) {
			if cand := stem[:n-1]; a.Known(cand) {
				return cand, true
			}
		}
	}
	return "", false
}

func (a *Analyzer) fallbackLemma(tok string) string {
	if strings.HasSuffix(tok, "ss") || strings.HasSuffix(tok, "us") || strings.HasSuffix(tok, "is") {
		return tok
	}
	for _, rule := range suffixRules {
		if !rule.fallback {
			continue
		}
		stem, ok := strings.CutSuffix(tok, rule.suffix)
		if !ok || len(stem) < rule.minStem {
			continue
		}
		return stem + rule.replace[0]
	}
	return tok
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
