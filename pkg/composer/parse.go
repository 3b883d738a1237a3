package composer

import (
	"regexp"
	"slices"
	"strings"
	"unicode"

	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// Actor is who the message is about.
type Actor string

const (
	ActorFirstPerson  Actor = "first_person"
	ActorSecondPerson Actor = "second_person"
	ActorImpersonal   Actor = "impersonal"
)

// Tense is the detected verb form.
type Tense string

const (
	TensePresentSimple     Tense = "present_simple"
	TensePresentContinuous Tense = "present_continuous"
	TensePast              Tense = "past"
	TenseContinuousPast    Tense = "continuous_past"
)

// Scope classifies the temporal phrase.
type Scope string

const (
	ScopeImmediate     Scope = "immediate"
	ScopeRecentOngoing Scope = "recent_ongoing"
	ScopeChronic       Scope = "chronic"
	ScopeUnspecified   Scope = "unspecified"
)

// Parse is the semantic reading of one message.
type Parse struct {
	Actor      Actor
	Tense      Tense
	Emphasis   string // marker directly before the affect word, "" if none
	Scope      Scope
	Temporal   string // the matched temporal phrase as written
	Affect     string // first affect word as written, "" when unspecified
	Context    bool
	Relational bool
	Somatic    bool
	Agency     bool
}

// Missing returns the semantic elements the message leaves out, in question
// priority order.
func (p Parse) Missing() []string {
	missing := []string{}
	if !p.Context {
		missing = append(missing, protocol.ElementContext)
	}
	if p.Scope == ScopeUnspecified {
		missing = append(missing, protocol.ElementTemporalSpecificity)
	}
	if !p.Somatic {
		missing = append(missing, protocol.ElementSomatic)
	}
	if !p.Relational {
		missing = append(missing, protocol.ElementRelational)
	}
	if !p.Agency {
		missing = append(missing, protocol.ElementAgency)
	}
	return missing
}

// Closed word families used by the parse.
//
//nolint:gochecknoglobals // static word families
var (
	firstPerson  = set("i", "i'm", "i've", "i'd", "i'll", "me", "my", "myself", "we", "we're", "we've", "us", "our")
	secondPerson = set("you", "you're", "you've", "your", "yourself")

	emphasisMarkers = set("so", "really", "very", "totally")

	continuousAux = set("am", "is", "are", "i'm", "we're", "you're", "they're", "it's", "he's", "she's")
	perfectAux    = set("have", "has", "i've", "we've", "you've", "they've", "he's", "she's")
	pastMarkers   = set("was", "were", "felt", "had", "did", "went", "got", "became", "used")

	contextWords = set("work", "job", "school", "class", "boss", "office", "meeting", "deadline",
		"project", "exam", "exams", "home", "house", "money", "rent", "bills", "moving", "move",
		"health", "diagnosis", "hospital", "shift", "interview", "studies", "career")
	relationalWords = set("mom", "mother", "dad", "father", "parents", "partner", "wife", "husband",
		"friend", "friends", "family", "sister", "brother", "son", "daughter", "boyfriend",
		"girlfriend", "kids", "children", "colleague", "colleagues", "coworker", "coworkers",
		"roommate", "team", "relationship", "someone", "everyone", "nobody")
	somaticWords = set("body", "chest", "stomach", "head", "headache", "shoulders", "neck",
		"throat", "heart", "breath", "breathe", "breathing", "sleep", "sleeping", "insomnia",
		"shaking", "tight", "tightness", "tense", "nausea", "dizzy", "hands", "jaw", "muscles")

	agencyPattern = regexp.MustCompile(
		`\b(i|we)('ve| have)? (tried|try|trying|attempted|decided|started|asked|told|reached out|talked)\b|\b(i|we)('m| am) (going to|trying)\b`)

	temporalPatterns = []struct {
		re    *regexp.Regexp
		scope Scope
	}{
		{regexp.MustCompile(`\bsince(\s+[\p{L}\p{N}']+){1,2}`), ScopeChronic},
		{regexp.MustCompile(`\b(for (years|months|a long time|ages)|always|all my life|forever|every day)\b`), ScopeChronic},
		{regexp.MustCompile(`\b(lately|recently|this week|these days|this month|the past few (days|weeks)|all week)\b`), ScopeRecentOngoing},
		{regexp.MustCompile(`\b(right now|today|tonight|this morning|this evening|at the moment|now)\b`), ScopeImmediate},
	}
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func has(m map[string]struct{}, w string) bool {
	_, ok := m[w]
	return ok
}

// words splits a message into lowercase words, keeping inner apostrophes so
// contractions ("i'm", "i've") survive.
func words(message string) []string {
	s := strings.ToLower(textnorm.Clean(message))
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parser holds the affect vocabulary resolved to lemmas.
type parser struct {
	analyzer *textnorm.Analyzer
	affect   map[string]struct{}
}

func newParser(a *textnorm.Analyzer, vocabulary []string) *parser {
	p := &parser{analyzer: a, affect: make(map[string]struct{}, len(vocabulary))}
	for _, w := range vocabulary {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		p.affect[w] = struct{}{}
		p.affect[a.Lemma(w)] = struct{}{}
	}
	return p
}

func (p *parser) isAffect(w string) bool {
	return has(p.affect, w) || has(p.affect, p.analyzer.Lemma(w))
}

func (p *parser) parse(message string) Parse {
	ws := words(message)
	out := Parse{Actor: actor(ws), Tense: tense(ws), Scope: ScopeUnspecified}

	for i, w := range ws {
		if !p.isAffect(w) {
			continue
		}
		out.Affect = w
		if i > 0 && has(emphasisMarkers, ws[i-1]) {
			out.Emphasis = ws[i-1]
		}
		break
	}

	joined := strings.Join(ws, " ")
	first := -1
	for _, tp := range temporalPatterns {
		loc := tp.re.FindStringIndex(joined)
		if loc == nil {
			continue
		}
		if first == -1 || loc[0] < first {
			first = loc[0]
			out.Scope = tp.scope
			out.Temporal = joined[loc[0]:loc[1]]
		}
	}

	out.Context = slices.ContainsFunc(ws, func(w string) bool { return has(contextWords, w) })
	out.Relational = slices.ContainsFunc(ws, func(w string) bool { return has(relationalWords, w) })
	out.Somatic = slices.ContainsFunc(ws, func(w string) bool { return has(somaticWords, w) })
	out.Agency = agencyPattern.MatchString(joined)
	return out
}

func actor(ws []string) Actor {
	for _, w := range ws {
		switch {
		case has(firstPerson, w):
			return ActorFirstPerson
		case has(secondPerson, w):
			return ActorSecondPerson
		}
	}
	return ActorImpersonal
}

// tense applies the auxiliary patterns in precedence order: have/has been,
// be + -ing (an emphasis marker may sit between), past markers, else
// present simple.
func tense(ws []string) Tense {
	for i, w := range ws {
		if has(perfectAux, w) && within(ws, i, 2, func(n string) bool { return n == "been" }) {
			return TenseContinuousPast
		}
	}
	for i, w := range ws {
		if has(continuousAux, w) && within(ws, i, 2, isParticiple) {
			return TensePresentContinuous
		}
	}
	for _, w := range ws {
		if has(pastMarkers, w) {
			return TensePast
		}
	}
	return TensePresentSimple
}

func within(ws []string, i, n int, pred func(string) bool) bool {
	for j := i + 1; j < len(ws) && j <= i+n; j++ {
		if pred(ws[j]) {
			return true
		}
	}
	return false
}

func isParticiple(w string) bool {
	return len(w) > 4 && strings.HasSuffix(w, "ing")
}
