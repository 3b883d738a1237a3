package textnorm

import (
	"sort"
	"strings"
	"unicode"
)

// Options configures an Analyzer. Nil fields fall back to the package defaults.
type Options struct {
	Stopwords  []string
	Lemmas     map[string]string // extra irregular forms, merged over DefaultIrregularLemmas
	Dictionary []string
	MinLength  int // tokens of this many runes or fewer are dropped; default 2
}

// Term is one token that survived filtering, with its lemma.
type Term struct {
	Surface string
	Lemma   string
}

// Analyzer runs pipeline steps 1-3: cleaning, token filtering and
// lemmatization. It is immutable; WithVocabulary returns an extended copy.
type Analyzer struct {
	stop      map[string]struct{}
	lemmas    map[string]string
	dict      map[string]struct{}
	sorted    []string // dict keys, sorted, for prefix lookups
	minLength int
}

// NewAnalyzer builds an Analyzer from opts.
func NewAnalyzer(opts Options) *Analyzer {
	stopwords := opts.Stopwords
	if stopwords == nil {
		stopwords = DefaultStopwords
	}
	dictionary := opts.Dictionary
	if dictionary == nil {
		dictionary = DefaultDictionary
	}
	minLength := opts.MinLength
	if minLength <= 0 {
		minLength = 2
	}

	a := &Analyzer{
		stop:      make(map[string]struct{}, len(stopwords)),
		lemmas:    make(map[string]string, len(DefaultIrregularLemmas)+len(opts.Lemmas)),
		dict:      make(map[string]struct{}, len(dictionary)),
		minLength: minLength,
	}
	for _, w := range stopwords {
		a.stop[strings.ToLower(w)] = struct{}{}
	}
	for k, v := range DefaultIrregularLemmas {
		a.lemmas[k] = v
	}
	for k, v := range opts.Lemmas {
		a.lemmas[strings.ToLower(k)] = strings.ToLower(v)
	}
	for _, w := range dictionary {
		a.dict[strings.ToLower(w)] = struct{}{}
	}
	a.rebuildSorted()
	return a
}

// WithVocabulary returns a copy of a whose dictionary also contains words.
// Retrieval passes the lexicon's keywords so message tokens resolve to them.
func (a *Analyzer) WithVocabulary(words []string) *Analyzer {
	cp := &Analyzer{
		stop:      a.stop,
		lemmas:    a.lemmas,
		dict:      make(map[string]struct{}, len(a.dict)+len(words)),
		minLength: a.minLength,
	}
	for w := range a.dict {
		cp.dict[w] = struct{}{}
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			cp.dict[w] = struct{}{}
		}
	}
	cp.rebuildSorted()
	return cp
}

func (a *Analyzer) rebuildSorted() {
	a.sorted = make([]string, 0, len(a.dict))
	for w := range a.dict {
		a.sorted = append(a.sorted, w)
	}
	sort.Strings(a.sorted)
}

// Tokenize cleans text and splits it into lowercase word tokens. Apostrophes
// split contractions ("don't" -> "don", "t"); the fragments are then caught by
// the stopword and length filters.
func Tokenize(text string) []string {
	lower := strings.ToLower(Clean(text))
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// IsStopword reports whether tok is in the configured stopword set.
func (a *Analyzer) IsStopword(tok string) bool {
	_, ok := a.stop[strings.ToLower(tok)]
	return ok
}

// Known reports whether w is a dictionary lemma.
func (a *Analyzer) Known(w string) bool {
	_, ok := a.dict[w]
	return ok
}

// Keep applies the token filter: stopwords, short tokens, pure digits and
// fragments (strict prefixes of a dictionary lemma that are not lemmas
// themselves) are rejected.
func (a *Analyzer) Keep(tok string) bool {
	if len([]rune(tok)) <= a.minLength {
		return false
	}
	if a.IsStopword(tok) {
		return false
	}
	if isDigits(tok) {
		return false
	}
	if a.isFragment(tok) {
		return false
	}
	return true
}

func (a *Analyzer) isFragment(tok string) bool {
	if a.Known(tok) || a.Known(a.Lemma(tok)) {
		return false
	}
	i := sort.SearchStrings(a.sorted, tok)
	for ; i < len(a.sorted); i++ {
		w := a.sorted[i]
		if !strings.HasPrefix(w, tok) {
			return false
		}
		if len(w) > len(tok) {
			return true
		}
	}
	return false
}

// Analyze runs steps 1-3 over text and returns surviving terms in order.
func (a *Analyzer) Analyze(text string) []Term {
	tokens := Tokenize(text)
	terms := make([]Term, 0, len(tokens))
	for _, tok := range tokens {
		if !a.Keep(tok) {
			continue
		}
		lemma := a.Lemma(tok)
		if a.IsStopword(lemma) {
			continue
		}
		terms = append(terms, Term{Surface: tok, Lemma: lemma})
	}
	return terms
}

// Lemmas returns the lemma of every surviving term in text.
func (a *Analyzer) Lemmas(text string) []string {
	terms := a.Analyze(text)
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = t.Lemma
	}
	return out
}

// Keywords normalizes a keyword list into an ordered set of lemmas that pass
// the hygiene rules. Multi-word entries contribute each surviving word.
func (a *Analyzer) Keywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, kw := range raw {
		for _, lemma := range a.Lemmas(kw) {
			if !a.Hygienic(lemma) {
				continue
			}
			if _, dup := seen[lemma]; dup {
				continue
			}
			seen[lemma] = struct{}{}
			out = append(out, lemma)
		}
	}
	return out
}

// Hygienic reports whether a stored keyword satisfies keyword hygiene: not a
// stopword and longer than the minimum length.
func (a *Analyzer) Hygienic(keyword string) bool {
	return len([]rune(keyword)) > a.minLength && !a.IsStopword(keyword)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// UnionKeywords appends to base every keyword of extra not already present.
func UnionKeywords(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, k := range list {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}
