package textnorm

import "strings"

// POS is the coarse part-of-speech class used by candidate filtering.
type POS int

const (
	POSOther POS = iota
	POSNoun
	POSAdjective
	POSVerb
)

func (p POS) String() string {
	switch p {
	case POSNoun:
		return "noun"
	case POSAdjective:
		return "adj"
	case POSVerb:
		return "verb"
	default:
		return "other"
	}
}

var adjectiveSuffixes = []string{"ful", "less", "ous", "ive", "able", "ible", "ic", "ish"} //nolint:gochecknoglobals // static

// Tagger is a lexicon-plus-suffix POS tagger. Closed word lists win; content
// words that match nothing are tagged as nouns.
type Tagger struct {
	analyzer   *Analyzer
	adjectives map[string]struct{}
	verbs      map[string]struct{}
}

// NewTagger builds a Tagger. Nil lists fall back to DefaultAdjectives and
// DefaultVerbs.
func NewTagger(a *Analyzer, adjectives, verbs []string) *Tagger {
	if adjectives == nil {
		adjectives = DefaultAdjectives
	}
	if verbs == nil {
		verbs = DefaultVerbs
	}
	t := &Tagger{
		analyzer:   a,
		adjectives: toSet(adjectives),
		verbs:      toSet(verbs),
	}
	return t
}

// Tag classifies a single term.
func (t *Tagger) Tag(term Term) POS {
	if t.analyzer.IsStopword(term.Surface) {
		return POSOther
	}
	if _, ok := t.adjectives[term.Surface]; ok {
		return POSAdjective
	}
	if _, ok := t.adjectives[term.Lemma]; ok {
		return POSAdjective
	}
	if _, ok := t.verbs[term.Lemma]; ok {
		return POSVerb
	}
	for _, suf := range adjectiveSuffixes {
		if strings.HasSuffix(term.Surface, suf) && len(term.Surface) > len(suf)+2 {
			return POSAdjective
		}
	}
	if isDigits(term.Surface) {
		return POSOther
	}
	return POSNoun
}

// TagAll tags every term in order.
func (t *Tagger) TagAll(terms []Term) []POS {
	out := make([]POS, len(terms))
	for i, term := range terms {
		out[i] = t.Tag(term)
	}
	return out
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
