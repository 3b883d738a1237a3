// Package ingest turns operator candidate lists, free-text corpora and
// feedback pairs into lexicon inserts and keyword enrichments. Every path is
// idempotent per (source, normalized key).
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/config"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// defaultChunkSize is the number of promoted rows applied per transaction.
const defaultChunkSize = 64

// Report summarizes one ingestion run. LastIndex is the index of the last
// input row whose outcome is final, -1 when none was processed.
type Report struct {
	SourceID  string     `json:"source_id"`
	Inserted  int        `json:"inserted"`
	Merged    int        `json:"merged"`
	Skipped   int        `json:"skipped"`
	Rejected  int        `json:"rejected"`
	Errors    []RowError `json:"errors,omitempty"`
	LastIndex int        `json:"last_index"`
	Partial   bool       `json:"partial,omitempty"`
}

// RowError records why one input row was rejected.
type RowError struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
}

// Add folds o into r. Row errors keep their own indexes.
func (r *Report) Add(o Report) {
	r.Inserted += o.Inserted
	r.Merged += o.Merged
	r.Skipped += o.Skipped
	r.Rejected += o.Rejected
	r.Errors = append(r.Errors, o.Errors...)
	r.Partial = r.Partial || o.Partial
}

// Ingester promotes candidates into a lexicon store.
type Ingester struct {
	store     *lexicon.Store
	cfg       *config.Config
	analyzer  *textnorm.Analyzer
	extractor Extractor
	log       *zap.Logger
	chunkSize int
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.log = logging.OrNop(l) }
}

// WithExtractor replaces the default n-gram corpus extractor.
func WithExtractor(e Extractor) Option {
	return func(in *Ingester) { in.extractor = e }
}

// WithChunkSize sets the number of rows applied per transaction.
func WithChunkSize(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.chunkSize = n
		}
	}
}

// New returns an Ingester writing to store with the vocabularies in cfg.
func New(store *lexicon.Store, cfg *config.Config, opts ...Option) *Ingester {
	in := &Ingester{
		store:     store,
		cfg:       cfg,
		analyzer:  cfg.Analyzer(),
		log:       zap.NewNop(),
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.extractor == nil {
		in.extractor = NewNgramExtractor(in.analyzer, cfg.Tagger(in.analyzer), NgramConfigFrom(cfg), in.log)
	}
	return in
}

// LoadCandidateFile reads a candidate-ingest JSON document.
func LoadCandidateFile(path string) (protocol.CandidateFile, error) {
	var f protocol.CandidateFile
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return f, fmt.Errorf("read candidates %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, &protocol.InvalidInputError{Field: "candidate file", Reason: err.Error()}
	}
	if strings.TrimSpace(f.SourceID) == "" {
		return f, &protocol.InvalidInputError{Field: "source_id", Reason: "empty"}
	}
	return f, nil
}

// pending is a validated candidate group sharing one normalized key.
type pending struct {
	row  lexicon.IngestRow
	last int // highest input index folded into row
}

// IngestCandidates validates, cleans and promotes candidates from sourceID.
// Bad rows are rejected and reported; candidates sharing a key are folded
// together before promotion. Rerunning the same input leaves the store
// unchanged. On cancellation the report is partial and the error is a
// *protocol.TimeoutExceededError; a store failure aborts with the report so
// far.
func (in *Ingester) IngestCandidates(ctx context.Context, sourceID string, candidates []protocol.Candidate) (Report, error) {
	start := time.Now()
	rep := Report{SourceID: sourceID, LastIndex: -1}
	if strings.TrimSpace(sourceID) == "" {
		return rep, &protocol.InvalidInputError{Field: "source_id", Reason: "empty"}
	}

	var (
		groups []*pending
		byKey  = make(map[string]*pending)
	)
	for i, c := range candidates {
		g, occurrences, err := in.prepare(c)
		var below belowFloor
		switch {
		case errors.As(err, &below):
			rep.Skipped++
			in.log.Debug("candidate below score floor",
				zap.Int("index", i), zap.String("name", c.Name), zap.Float64("confidence", float64(below)))
			continue
		case err != nil:
			rep.Rejected++
			rep.Errors = append(rep.Errors, RowError{Index: i, Name: c.Name, Error: err.Error()})
			in.log.Warn("candidate rejected", zap.Int("index", i), zap.String("name", c.Name), zap.Error(err))
			continue
		}

		key := textnorm.NormalizedKey(g.Name)
		if p, ok := byKey[key]; ok {
			p.row.Glyph.Keywords = textnorm.UnionKeywords(p.row.Glyph.Keywords, g.Keywords)
			if p.row.Glyph.Description == "" {
				p.row.Glyph.Description = g.Description
			}
			if p.row.Glyph.Gate == "" {
				p.row.Glyph.Gate = g.Gate
			}
			p.row.Occurrences += occurrences
			p.last = i
			continue
		}
		p := &pending{row: lexicon.IngestRow{Glyph: g, Occurrences: occurrences}, last: i}
		byKey[key] = p
		groups = append(groups, p)
	}

	for lo := 0; lo < len(groups); lo += in.chunkSize {
		if err := ctx.Err(); err != nil {
			rep.Partial = true
			return rep, &protocol.TimeoutExceededError{Op: "ingest", Index: rep.LastIndex, Elapsed: time.Since(start)}
		}
		hi := min(lo+in.chunkSize, len(groups))
		rows := make([]lexicon.IngestRow, 0, hi-lo)
		for _, p := range groups[lo:hi] {
			rows = append(rows, p.row)
		}

		res, err := in.store.ApplyIngest(ctx, sourceID, rows)
		if err != nil {
			rep.Partial = true
			return rep, fmt.Errorf("apply ingest chunk at row %d: %w", lo, err)
		}
		for j, outcome := range res.Outcomes {
			switch outcome {
			case lexicon.OutcomeInserted:
				rep.Inserted++
			case lexicon.OutcomeMerged:
				rep.Merged++
			case lexicon.OutcomeArchived:
				rep.Skipped++
				in.log.Info("candidate key is archived; not resurrected",
					zap.String("name", rows[j].Glyph.Name))
			default:
				rep.Skipped++
			}
			rep.LastIndex = max(rep.LastIndex, groups[lo+j].last)
		}
	}
	rep.LastIndex = len(candidates) - 1

	in.log.Info("ingest complete",
		zap.String("source_id", sourceID),
		zap.Int("inserted", rep.Inserted), zap.Int("merged", rep.Merged),
		zap.Int("skipped", rep.Skipped), zap.Int("rejected", rep.Rejected))
	return rep, nil
}

// belowFloor marks a candidate whose confidence is under the score floor.
type belowFloor float64

func (b belowFloor) Error() string {
	return fmt.Sprintf("confidence %.2f below score floor", float64(b))
}

// prepare runs cleaning, validation and keyword hygiene over one candidate.
func (in *Ingester) prepare(c protocol.Candidate) (protocol.Glyph, int, error) {
	name := textnorm.Clean(c.Name)
	if name == "" {
		return protocol.Glyph{}, 0, &protocol.InvalidInputError{Field: "name", Reason: "empty"}
	}
	if textnorm.NormalizedKey(name) == "" {
		return protocol.Glyph{}, 0, &protocol.InvalidInputError{Field: "name", Reason: "no alphanumeric characters"}
	}
	gate := strings.TrimSpace(c.Gate)
	if gate != "" && !in.cfg.HasGate(gate) {
		return protocol.Glyph{}, 0, &protocol.InvalidInputError{Field: "gate", Reason: "unknown gate " + gate}
	}
	if c.Occurrences < 0 {
		return protocol.Glyph{}, 0, &protocol.InvalidInputError{Field: "frequency", Reason: "negative"}
	}
	if c.Confidence > 0 && c.Confidence < in.cfg.Ingest.ScoreFloor {
		return protocol.Glyph{}, 0, belowFloor(c.Confidence)
	}

	keywords := in.analyzer.Keywords(c.Keywords)
	if len(keywords) == 0 {
		keywords = in.analyzer.Keywords([]string{name})
	}
	occurrences := c.Occurrences
	if occurrences == 0 {
		occurrences = 1
	}
	return protocol.Glyph{
		Name:        name,
		Description: textnorm.Clean(c.Description),
		Gate:        gate,
		Keywords:    keywords,
	}, occurrences, nil
}
