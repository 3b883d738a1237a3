package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"glyphos/pkg/feedback"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// SplitChunks breaks a corpus into paragraph chunks on blank lines.
func SplitChunks(text string) []string {
	var (
		chunks []string
		cur    []string
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for line := range strings.SplitSeq(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return chunks
}

// IngestCorpus extracts candidate phrases from chunks and promotes them under
// sourceID. Extraction runs on the configured worker pool; promotion goes
// through the same path as IngestCandidates, so reruns are no-ops.
func (in *Ingester) IngestCorpus(ctx context.Context, sourceID string, chunks []string) (Report, error) {
	candidates, err := in.extractor.Extract(ctx, chunks)
	if err != nil {
		if ctx.Err() != nil {
			return Report{SourceID: sourceID, LastIndex: -1, Partial: true},
				&protocol.TimeoutExceededError{Op: "extract", Index: -1}
		}
		return Report{SourceID: sourceID, LastIndex: -1}, err
	}
	in.log.Debug("corpus candidates extracted",
		zap.String("source_id", sourceID), zap.Int("chunks", len(chunks)), zap.Int("candidates", len(candidates)))
	return in.IngestCandidates(ctx, sourceID, candidates)
}

// FeedbackSource names the ingest source of one feedback pair.
func FeedbackSource(p feedback.TrainingPair) string {
	return fmt.Sprintf("feedback:%s:%d:%d", p.ConversationID, p.TurnIndex, p.FeedbackID)
}

// PromoteFeedback consumes training pairs. A rating at or above the
// configured threshold enriches the glyph used in the turn with the affect
// words of the user's input and counts one occurrence. A correction is run
// through the corpus extractor. Each pair is its own source, so promoting the
// same pairs twice changes nothing.
func (in *Ingester) PromoteFeedback(ctx context.Context, pairs []feedback.TrainingPair) (Report, error) {
	total := Report{SourceID: "feedback", LastIndex: -1}
	affect := in.affectLemmas()

	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			total.Partial = true
			return total, &protocol.TimeoutExceededError{Op: "promote feedback", Index: total.LastIndex}
		}
		source := FeedbackSource(p)

		if p.Rating != nil && *p.Rating >= in.cfg.Ingest.PromoteRatingMin && p.GlyphID != nil {
			rep, err := in.enrichFromRating(ctx, source, *p.GlyphID, p.UserInput, affect)
			if err != nil {
				return total, err
			}
			total.Add(rep)
		}
		if p.CorrectedOutput != nil && strings.TrimSpace(*p.CorrectedOutput) != "" {
			rep, err := in.IngestCorpus(ctx, source, []string{*p.CorrectedOutput})
			if err != nil {
				total.Add(rep)
				return total, err
			}
			total.Add(rep)
		}
		total.LastIndex = i
	}
	return total, nil
}

func (in *Ingester) enrichFromRating(ctx context.Context, source string, glyphID int64, userInput string, affect map[string]struct{}) (Report, error) {
	g, err := in.store.Get(ctx, glyphID)
	if err != nil {
		in.log.Info("feedback glyph not active; skipping", zap.Int64("glyph_id", glyphID), zap.Error(err))
		return Report{Skipped: 1}, nil
	}
	var words []string
	for _, lemma := range in.analyzer.Lemmas(userInput) {
		if _, ok := affect[lemma]; ok {
			words = append(words, lemma)
		}
	}
	return in.IngestCandidates(ctx, source, []protocol.Candidate{{
		Name:        g.Name,
		Keywords:    textnorm.UnionKeywords(g.Keywords, words),
		Occurrences: 1,
	}})
}

// affectLemmas is the lemmatized affect vocabulary plus the emotion cores.
func (in *Ingester) affectLemmas() map[string]struct{} {
	out := make(map[string]struct{})
	for _, list := range [][]string{in.cfg.Affect.Vocabulary, in.cfg.Affect.EmotionCores, in.cfg.Ingest.Seeds} {
		for _, w := range list {
			out[in.analyzer.Lemma(strings.ToLower(w))] = struct{}{}
		}
	}
	return out
}
