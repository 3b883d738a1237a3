package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"glyphos/internal/logging"
	"glyphos/pkg/config"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// Extractor proposes candidates from raw text chunks. Returned candidates
// carry Confidence (their score) and Occurrences.
type Extractor interface {
	Extract(ctx context.Context, chunks []string) ([]protocol.Candidate, error)
}

// Scoring weights for corpus phrases.
const (
	seedWeight          = 3.0
	adjNounBonus        = 0.8
	loneAdjectiveBonus  = 1.0
	lengthBonus         = 0.5
	boilerplatePenalty  = 5.0
	minBonusPhraseWords = 2
	maxBonusPhraseWords = 4
)

// NgramConfig tunes the default extractor.
type NgramConfig struct {
	MaxTokens   int
	Workers     int
	ScoreFloor  float64
	Seeds       []string
	Boilerplate []string
	Gates       []string
}

// NgramConfigFrom derives the extractor settings from cfg.
func NgramConfigFrom(cfg *config.Config) NgramConfig {
	return NgramConfig{
		MaxTokens:   cfg.Ingest.MaxPhraseTokens,
		Workers:     cfg.Ingest.Workers,
		ScoreFloor:  cfg.Ingest.ScoreFloor,
		Seeds:       cfg.Ingest.Seeds,
		Boilerplate: cfg.Lexicon.Boilerplate,
		Gates:       cfg.Lexicon.Gates,
	}
}

// NgramExtractor scores every 1..MaxTokens word window of each clause and
// keeps the ones above the floor. Chunks are processed by a bounded worker
// pool; results are merged in chunk order so output is deterministic.
type NgramExtractor struct {
	analyzer *textnorm.Analyzer
	tagger   *textnorm.Tagger
	cfg      NgramConfig
	seeds    map[string]struct{}
	gates    map[string]struct{}
	boiler   []*regexp.Regexp
	log      *zap.Logger
}

// NewNgramExtractor builds the extractor. Boilerplate patterns that fail to
// compile are logged and ignored.
func NewNgramExtractor(a *textnorm.Analyzer, t *textnorm.Tagger, cfg NgramConfig, log *zap.Logger) *NgramExtractor {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &NgramExtractor{
		analyzer: a,
		tagger:   t,
		cfg:      cfg,
		seeds:    make(map[string]struct{}, len(cfg.Seeds)),
		gates:    make(map[string]struct{}, len(cfg.Gates)),
		log:      logging.OrNop(log),
	}
	for _, s := range cfg.Seeds {
		e.seeds[a.Lemma(strings.ToLower(s))] = struct{}{}
	}
	for _, g := range cfg.Gates {
		e.gates[strings.ToLower(g)] = struct{}{}
	}
	for _, p := range cfg.Boilerplate {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			e.log.Warn("ignoring boilerplate pattern", zap.String("pattern", p), zap.Error(err))
			continue
		}
		e.boiler = append(e.boiler, re)
	}
	return e
}

// IsBoilerplate reports whether text matches any blacklist pattern.
func (e *NgramExtractor) IsBoilerplate(text string) bool {
	for _, re := range e.boiler {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

type phrase struct {
	text     string
	keywords []string
	gate     string
	score    float64
}

// Extract implements Extractor.
func (e *NgramExtractor) Extract(ctx context.Context, chunks []string) ([]protocol.Candidate, error) {
	results := make([][]phrase, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.extractChunk(chunk)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract phrases: %w", err)
	}

	var (
		out   []protocol.Candidate
		index = make(map[string]int)
	)
	for i, phrases := range results {
		ref := fmt.Sprintf("chunk:%d", i)
		for _, p := range phrases {
			key := textnorm.NormalizedKey(p.text)
			if j, ok := index[key]; ok {
				c := &out[j]
				c.Occurrences++
				c.Confidence = max(c.Confidence, p.score)
				if c.SourceRefs[len(c.SourceRefs)-1] != ref {
					c.SourceRefs = append(c.SourceRefs, ref)
				}
				continue
			}
			index[key] = len(out)
			out = append(out, protocol.Candidate{
				Name:        p.text,
				Gate:        p.gate,
				Keywords:    p.keywords,
				Occurrences: 1,
				Confidence:  p.score,
				SourceRefs:  []string{ref},
			})
		}
	}
	return out, nil
}

func (e *NgramExtractor) extractChunk(chunk string) []phrase {
	var out []phrase
	for _, clause := range splitClauses(textnorm.Clean(chunk)) {
		penalty := 0.0
		if e.IsBoilerplate(clause) {
			penalty = boilerplatePenalty
		}
		tokens := textnorm.Tokenize(clause)
		for n := 1; n <= e.cfg.MaxTokens; n++ {
			for i := 0; i+n <= len(tokens); i++ {
				if p, ok := e.candidate(tokens[i:i+n], penalty); ok {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// candidate applies the phrase filter and scoring to one token window.
func (e *NgramExtractor) candidate(window []string, penalty float64) (phrase, bool) {
	if e.analyzer.IsStopword(window[0]) || e.analyzer.IsStopword(window[len(window)-1]) {
		return phrase{}, false
	}
	for _, tok := range window {
		if !e.analyzer.IsStopword(tok) && !e.analyzer.Keep(tok) {
			return phrase{}, false
		}
	}
	text := strings.Join(window, " ")
	if e.IsBoilerplate(text) {
		return phrase{}, false
	}

	terms := e.analyzer.Analyze(text)
	tags := e.tagger.TagAll(terms)
	var hasNoun, hasAdj bool
	for _, tag := range tags {
		switch tag {
		case textnorm.POSNoun:
			hasNoun = true
		case textnorm.POSAdjective:
			hasAdj = true
		}
	}
	if !hasNoun && !hasAdj {
		return phrase{}, false
	}

	score := 0.0
	var (
		keywords []string
		gate     string
	)
	for _, t := range terms {
		if _, ok := e.seeds[t.Lemma]; ok {
			score += seedWeight
		}
		if _, ok := e.gates[t.Lemma]; ok && gate == "" {
			gate = t.Lemma
		}
		if e.analyzer.Hygienic(t.Lemma) {
			keywords = textnorm.UnionKeywords(keywords, []string{t.Lemma})
		}
	}
	switch {
	case hasAdj && hasNoun:
		score += adjNounBonus
	case hasAdj && len(terms) == 1:
		score += loneAdjectiveBonus
	}
	if len(window) >= minBonusPhraseWords && len(window) <= maxBonusPhraseWords {
		score += lengthBonus
	}
	score -= penalty

	if score < e.cfg.ScoreFloor {
		return phrase{}, false
	}
	return phrase{text: text, keywords: keywords, gate: gate, score: score}, true
}

// clauseBreak splits on clause punctuation followed by space or end of text,
// so URLs and file paths stay inside one clause.
var clauseBreak = regexp.MustCompile(`[.,;:!?]+(\s+|$)|[()\[\]"\n\t]+|\s[\p{Pd}]+\s`) //nolint:gochecknoglobals // compiled once

// splitClauses breaks text on sentence and clause punctuation.
func splitClauses(text string) []string {
	parts := clauseBreak.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
