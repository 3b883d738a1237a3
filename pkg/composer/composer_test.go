package composer

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glyphos/pkg/config"
	"glyphos/pkg/protocol"
)

func stillInsight() *protocol.Glyph {
	return &protocol.Glyph{ID: 1, Name: "Still Insight", Description: "Quiet revelation.", Keywords: []string{"quiet"}}
}

func newTestComposer() *Composer {
	return New(config.DefaultConfig())
}

func TestCompose_TenseEmphasisTemporal(t *testing.T) {
	c := newTestComposer()
	r := c.Compose(context.Background(), Input{
		Message: "I'm feeling so stressed today", Glyph: stillInsight(), TurnIndex: 0,
	})

	assert.Equal(t, TensePresentContinuous, r.Parse.Tense)
	assert.Equal(t, "so", r.Parse.Emphasis)
	assert.Equal(t, ScopeImmediate, r.Parse.Scope)
	assert.Equal(t, "stressed", r.Parse.Affect)

	assert.True(t, strings.HasPrefix(r.Text, "You're feeling so stressed today."), r.Text)
	assert.Contains(t, r.Text, "Quiet revelation")
	assert.True(t, strings.HasSuffix(r.Text, questions[protocol.ElementContext]), r.Text)
	assert.Equal(t, 1, strings.Count(r.Text, "?"))
	assert.LessOrEqual(t, utf8.RuneCountInString(r.Text), 400)
	assert.Equal(t, protocol.ElementContext, r.MissingElements[0])
	assert.NotContains(t, r.MissingElements, protocol.ElementTemporalSpecificity)
	assert.Equal(t, config.EndQuestion, r.Ending)
}

func TestCompose_Cadence(t *testing.T) {
	c := newTestComposer()
	msg := "I feel sad"
	want := []struct {
		ending   string
		suffix   string
		question bool
	}{
		{config.EndQuestion, questions[protocol.ElementContext], true},
		{config.EndReflection, reflectionLine, false},
		{config.EndQuestion, questions[protocol.ElementContext], true},
		{config.EndAffirmation, affirmationLine, false},
		{config.EndQuestion, questions[protocol.ElementContext], true},
	}
	for turn, w := range want {
		r := c.Compose(context.Background(), Input{Message: msg, Glyph: stillInsight(), TurnIndex: turn})
		assert.Equal(t, w.ending, r.Ending, "turn %d", turn)
		assert.True(t, strings.HasSuffix(r.Text, w.suffix), "turn %d: %s", turn, r.Text)
		assert.Equal(t, w.question, strings.Contains(r.Text, "?"), "turn %d", turn)
	}
}

func TestCompose_NoMissingElementsOmitsQuestion(t *testing.T) {
	c := newTestComposer()
	msg := "I've tried talking to my boss at work but my chest has been tight since march and my partner worries"
	p := c.Parse(msg)
	require.Empty(t, p.Missing(), "%+v", p)

	r := c.Compose(context.Background(), Input{Message: msg, Glyph: stillInsight(), TurnIndex: 0})
	assert.NotContains(t, r.Text, "?")
	assert.Empty(t, r.MissingElements)
}

func TestCompose_EmptyMessage(t *testing.T) {
	c := newTestComposer()
	for _, msg := range []string{"", "   \n\t"} {
		r := c.Compose(context.Background(), Input{Message: msg, Glyph: stillInsight()})
		assert.Equal(t, emptyAcknowledgment, r.Text)
		assert.NotContains(t, r.Text, "?")
		assert.Empty(t, r.MissingElements)
		assert.True(t, r.Fallback, "the glyph did not shape the reply")
	}
}

func TestCompose_Fallbacks(t *testing.T) {
	c := newTestComposer()
	ctx := context.Background()

	for name, g := range map[string]*protocol.Glyph{
		"missing":   nil,
		"malformed": {ID: 0, Name: ""},
	} {
		t.Run(name, func(t *testing.T) {
			r := c.Compose(ctx, Input{Message: "I feel lonely", Glyph: g, TurnIndex: 1})
			assert.True(t, r.Fallback)
			assert.Equal(t, "You feel lonely. "+genericQuestion, r.Text)
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	r := c.Compose(cancelled, Input{Message: "I feel lonely", Glyph: stillInsight()})
	assert.True(t, r.Fallback)
	assert.True(t, strings.HasSuffix(r.Text, genericQuestion))
}

func TestCompose_EchoWithoutAffect(t *testing.T) {
	c := newTestComposer()
	long := strings.Repeat("the meeting ran long again ", 10)
	r := c.Compose(context.Background(), Input{Message: long, Glyph: stillInsight(), TurnIndex: 1})

	assert.Empty(t, r.Parse.Affect)
	require.True(t, strings.HasPrefix(r.Text, `I hear you when you say "`), r.Text)
	quoted := strings.SplitN(r.Text, `"`, 3)[1]
	assert.LessOrEqual(t, utf8.RuneCountInString(quoted), 80)
	assert.True(t, strings.HasPrefix(long, quoted))
}

func TestCompose_TemplateAndMetaphors(t *testing.T) {
	c := newTestComposer()
	tmpl := "Grief moves like a storm. You are not alone in it. Does that fit?"
	g := &protocol.Glyph{ID: 2, Name: "Grief Wave", ResponseTemplate: &tmpl}

	r := c.Compose(context.Background(), Input{Message: "I feel sad", Glyph: g, TurnIndex: 1})
	assert.NotContains(t, r.Text, "storm")
	assert.Contains(t, r.Text, "You are not alone in it.")
	assert.NotContains(t, r.Text, "?", "template questions never reach the reply")

	r = c.Compose(context.Background(), Input{Message: "I feel sad, like a storm inside", Glyph: g, TurnIndex: 1})
	assert.Contains(t, r.Text, "Grief moves like a storm.")
}

func TestCompose_LengthLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Composer.MaxLength = 120
	c := New(cfg)
	g := &protocol.Glyph{ID: 3, Name: "Long One", Description: strings.Repeat("Quiet revelation keeps unfolding slowly. ", 8)}

	r := c.Compose(context.Background(), Input{Message: "I'm feeling so stressed today", Glyph: g})
	assert.LessOrEqual(t, utf8.RuneCountInString(r.Text), 120)
	assert.True(t, strings.HasPrefix(r.Text, "You're feeling so stressed today."))
	assert.True(t, strings.HasSuffix(r.Text, "?"))
}

func TestParse(t *testing.T) {
	c := newTestComposer()
	tests := []struct {
		msg   string
		actor Actor
		tense Tense
		scope Scope
	}{
		{"I feel anxious", ActorFirstPerson, TensePresentSimple, ScopeUnspecified},
		{"I'm feeling really tired right now", ActorFirstPerson, TensePresentContinuous, ScopeImmediate},
		{"I was angry yesterday", ActorFirstPerson, TensePast, ScopeUnspecified},
		{"I've been exhausted lately", ActorFirstPerson, TenseContinuousPast, ScopeRecentOngoing},
		{"You never listen", ActorSecondPerson, TensePresentSimple, ScopeUnspecified},
		{"Everything is heavy since the move", ActorImpersonal, TensePresentSimple, ScopeChronic},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			p := c.Parse(tt.msg)
			assert.Equal(t, tt.actor, p.Actor)
			assert.Equal(t, tt.tense, p.Tense)
			assert.Equal(t, tt.scope, p.Scope)
		})
	}

	p := c.Parse("I've been so lonely since my sister moved away, my chest hurts and I tried journaling")
	assert.Equal(t, "so", p.Emphasis)
	assert.Equal(t, "lonely", p.Affect)
	assert.Equal(t, "since my sister", p.Temporal)
	assert.True(t, p.Relational)
	assert.True(t, p.Somatic)
	assert.True(t, p.Agency)
	assert.False(t, p.Context)
	assert.Equal(t, []string{protocol.ElementContext}, p.Missing())
}

func TestSentences(t *testing.T) {
	assert.Equal(t, []string{"One.", "Two?", "Three!", "Tail."}, sentences("One. Two?  Three! Tail"))
	assert.Equal(t, []string{"See v1.2 notes."}, sentences("See v1.2 notes."))
	assert.Empty(t, sentences("   "))
}
