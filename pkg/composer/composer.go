// Package composer builds short grounded replies: an acknowledgment of what
// the user said, a validation drawn from the retrieved glyph, and at most one
// clarifying question, rotated by a per-conversation turn cadence.
package composer

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/config"
	"glyphos/pkg/protocol"
)

// Fixed reply lines.
const (
	emptyAcknowledgment = "I'm here and listening."
	genericQuestion     = "Can you tell me a little more about what's going on?"
	reflectionLine      = "It makes sense that this is sitting with you."
	affirmationLine     = "Thank you for putting this into words."
)

// questions maps each missing element to its clarifying question.
//
//nolint:gochecknoglobals // static question table
var questions = map[string]string{
	protocol.ElementContext:             "What's been happening around this?",
	protocol.ElementTemporalSpecificity: "When did this start to feel this way?",
	protocol.ElementSomatic:             "Where do you notice it in your body?",
	protocol.ElementRelational:          "Is there someone in your life this touches?",
	protocol.ElementAgency:              "What have you tried so far?",
}

// Input is one compose call. Glyph is nil when retrieval found nothing.
type Input struct {
	Message   string
	Glyph     *protocol.Glyph
	TurnIndex int
}

// Reply is the composed reply with the parse behind it.
type Reply struct {
	Text            string
	Parse           Parse
	MissingElements []string
	Ending          string // cadence ending applied, "" for fallbacks and empty messages
	Fallback        bool   // no glyph shaped the reply
}

// Composer composes replies from one immutable configuration.
type Composer struct {
	cfg       config.ComposerConfig
	parser    *parser
	metaphors map[string]struct{}
	log       *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Composer) { c.log = logging.OrNop(l) }
}

// New returns a Composer for cfg.
func New(cfg *config.Config, opts ...Option) *Composer {
	a := cfg.Analyzer()
	c := &Composer{
		cfg:       cfg.Composer,
		parser:    newParser(a, cfg.Affect.Vocabulary),
		metaphors: make(map[string]struct{}, len(cfg.Affect.Metaphors)),
		log:       zap.NewNop(),
	}
	for _, m := range cfg.Affect.Metaphors {
		c.metaphors[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse exposes the semantic parse of message.
func (c *Composer) Parse(message string) Parse {
	return c.parser.parse(message)
}

// Compose builds the reply for in. It never returns an empty reply. A
// missing or malformed glyph, or a cancelled ctx, yields the acknowledgment
// plus one generic question. An empty message yields the acknowledgment only
// and counts as a fallback.
func (c *Composer) Compose(ctx context.Context, in Input) Reply {
	if strings.TrimSpace(in.Message) == "" {
		return Reply{Text: emptyAcknowledgment, Parse: Parse{Scope: ScopeUnspecified}, MissingElements: []string{}, Fallback: true}
	}

	p := c.parser.parse(in.Message)
	r := Reply{Parse: p, MissingElements: p.Missing()}
	ack := c.acknowledge(p, in.Message)

	if ctx.Err() != nil || !usable(in.Glyph) {
		c.log.Debug("composer fallback", zap.Bool("cancelled", ctx.Err() != nil), zap.Bool("glyph", in.Glyph != nil))
		r.Fallback = true
		r.Text = c.fit([]string{ack}, nil, genericQuestion)
		return r
	}

	userWords := make(map[string]struct{})
	for _, w := range words(in.Message) {
		userWords[w] = struct{}{}
		userWords[c.parser.analyzer.Lemma(w)] = struct{}{}
	}
	validation := c.stripMetaphors(c.validation(*in.Glyph), userWords)

	r.Ending = c.ending(in.TurnIndex)
	var closing string
	switch r.Ending {
	case config.EndQuestion:
		if len(r.MissingElements) > 0 {
			closing = questions[r.MissingElements[0]]
		}
	case config.EndReflection:
		closing = reflectionLine
	case config.EndAffirmation:
		closing = affirmationLine
	}

	r.Text = c.fit([]string{ack}, validation, closing)
	return r
}

func usable(g *protocol.Glyph) bool {
	return g != nil && g.ID > 0 && strings.TrimSpace(g.Name) != ""
}

// ending picks the cadence ending for turn. Negative turns count from zero.
func (c *Composer) ending(turn int) string {
	n := len(c.cfg.Cadence)
	if n == 0 {
		return config.EndQuestion
	}
	if turn < 0 {
		turn = 0
	}
	return c.cfg.Cadence[turn%n]
}

// acknowledge renders the tense x emphasis x temporal acknowledgment, or
// echoes the user's words when no affect was found.
func (c *Composer) acknowledge(p Parse, message string) string {
	if p.Affect == "" {
		return fmt.Sprintf("I hear you when you say \"%s\".", echo(message, c.echoLength()))
	}

	feeling := p.Affect
	if p.Emphasis != "" {
		feeling = p.Emphasis + " " + p.Affect
	}

	var s string
	if p.Actor == ActorFirstPerson {
		switch p.Tense {
		case TensePresentContinuous:
			s = "You're feeling " + feeling
		case TenseContinuousPast:
			s = "You've been feeling " + feeling
		case TensePast:
			s = "You felt " + feeling
		default:
			s = "You feel " + feeling
		}
	} else {
		s = "It sounds like there's something " + feeling + " here"
	}

	switch p.Scope {
	case ScopeImmediate:
		s += " " + p.Temporal
	case ScopeRecentOngoing:
		s += ", and it's been going on " + p.Temporal
	case ScopeChronic:
		s += ", and it's been with you " + p.Temporal
	}
	return s + "."
}

func (c *Composer) echoLength() int {
	if c.cfg.EchoLength > 0 {
		return c.cfg.EchoLength
	}
	return 80
}

// echo returns a fragment of the user's words of at most n runes, cut at a
// word boundary when possible.
func echo(message string, n int) string {
	s := strings.Join(strings.Fields(message), " ")
	s = strings.NewReplacer("?", "", "\"", "").Replace(s)
	s = strings.TrimRight(s, ".!,;: ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, ".!?,;: ")
}

// validation returns the glyph's template sentences, or its description
// condensed to the first sentence and prefixed with the glyph's label.
func (c *Composer) validation(g protocol.Glyph) []string {
	if g.HasTemplate() {
		return sentences(*g.ResponseTemplate)
	}
	desc := sentences(g.Description)
	if len(desc) == 0 {
		return nil
	}
	return []string{g.Label() + ": " + desc[0]}
}

// stripMetaphors drops every sentence that introduces a configured metaphor
// the user did not use. Questions are dropped too; the ending owns the only
// question.
func (c *Composer) stripMetaphors(in []string, user map[string]struct{}) []string {
	var out []string
	for _, s := range in {
		if strings.HasSuffix(s, "?") {
			continue
		}
		if c.introducesMetaphor(s, user) {
			c.log.Debug("metaphor stripped", zap.String("sentence", s))
			continue
		}
		out = append(out, s)
	}
	return out
}

func (c *Composer) introducesMetaphor(sentence string, user map[string]struct{}) bool {
	for _, w := range words(sentence) {
		if _, ok := c.metaphors[w]; !ok {
			if _, ok := c.metaphors[c.parser.analyzer.Lemma(w)]; !ok {
				continue
			}
		}
		_, used := user[w]
		_, usedLemma := user[c.parser.analyzer.Lemma(w)]
		if !used && !usedLemma {
			return true
		}
	}
	return false
}

// fit joins the parts within the length limit. Validation sentences are
// dropped from the end first; the acknowledgment and closing are kept, the
// acknowledgment being shortened as a last resort.
func (c *Composer) fit(head, validation []string, closing string) string {
	limit := c.cfg.MaxLength
	if limit <= 0 {
		limit = 400
	}
	join := func(v []string) string {
		parts := append(append([]string{}, head...), v...)
		if closing != "" {
			parts = append(parts, closing)
		}
		return strings.Join(parts, " ")
	}
	for n := len(validation); n >= 0; n-- {
		if s := join(validation[:n]); utf8.RuneCountInString(s) <= limit {
			return s
		}
	}
	s := join(nil)
	if utf8.RuneCountInString(s) > limit {
		s = truncate(s, limit)
	}
	return s
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := strings.TrimRightFunc(string(r[:limit-1]), unicode.IsSpace)
	return cut + "…"
}

// sentences splits text into trimmed sentences, keeping terminators.
func sentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + 1
		if next < len(text) && text[next] != ' ' {
			continue
		}
		if s := strings.TrimSpace(text[start:next]); s != "" {
			out = append(out, s)
		}
		start = next
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s+".")
	}
	return out
}
