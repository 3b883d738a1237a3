// Package retrieval ranks active glyphs against a user message by weighted
// keyword, name and emotion-core hits.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/config"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// Matched-term prefixes, one per hit kind.
const (
	HitName    = "name"
	HitKeyword = "keyword"
	HitCore    = "core"
	HitContext = "context"
)

// Request is one retrieval query. Context holds prior turns of the
// conversation, oldest first.
type Request struct {
	Message string
	Gate    string
	K       int
	Context []string
}

// Hit is one ranked glyph. MatchedTerms are "<kind>:<lemma>" in scoring order.
type Hit struct {
	Glyph        protocol.Glyph
	Score        int
	MatchedTerms []string
}

// Result is a ranking. Partial is set when the deadline cut scoring short;
// Hits then ranks only the glyphs scored in time.
type Result struct {
	Hits    []Hit
	Partial bool
}

// Response converts r to the wire shape.
func (r Result) Response() protocol.RetrieveResponse {
	out := protocol.RetrieveResponse{Results: make([]protocol.RetrieveHit, 0, len(r.Hits)), Partial: r.Partial}
	for _, h := range r.Hits {
		out.Results = append(out.Results, protocol.RetrieveHit{
			GlyphID:      protocol.FormatID(h.Glyph.ID),
			Name:         h.Glyph.Name,
			Score:        h.Score,
			MatchedTerms: h.MatchedTerms,
		})
	}
	return out
}

// Retriever scores glyphs from one store.
type Retriever struct {
	store    *lexicon.Store
	cfg      *config.Config
	analyzer *textnorm.Analyzer
	cores    []string
	log      *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.log = logging.OrNop(l) }
}

// New returns a Retriever over store.
func New(store *lexicon.Store, cfg *config.Config, opts ...Option) *Retriever {
	r := &Retriever{store: store, cfg: cfg, analyzer: cfg.Analyzer(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	seen := make(map[string]struct{})
	for _, c := range cfg.Affect.EmotionCores {
		c = r.analyzer.Lemma(strings.ToLower(strings.TrimSpace(c)))
		if _, dup := seen[c]; c == "" || dup {
			continue
		}
		seen[c] = struct{}{}
		r.cores = append(r.cores, c)
	}
	return r
}

// Retrieve ranks the active glyphs for req. Only glyphs scoring above the
// configured floor are returned, at most K (default from config). An empty
// store or a message with no content words yields an empty ranking. The
// configured retrieval timeout bounds the call; on expiry the glyphs scored
// so far are ranked and Partial is set.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, error) {
	if req.Gate != "" && !r.cfg.HasGate(req.Gate) {
		return Result{}, &protocol.InvalidInputError{Field: "gate", Reason: "unknown gate " + req.Gate}
	}
	if req.K < 0 {
		return Result{}, &protocol.InvalidInputError{Field: "k", Reason: "negative"}
	}
	k := req.K
	if k == 0 {
		k = r.cfg.Retrieval.TopK
	}

	if d := r.cfg.RetrievalTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	start := time.Now()

	vocab, err := r.store.Vocabulary(ctx)
	if err != nil {
		return r.interrupted(ctx, err, start, nil, k)
	}
	a := r.analyzer.WithVocabulary(vocab)

	q := newQuery(a, req.Message, req.Context)
	if q.empty() {
		return Result{Hits: []Hit{}}, nil
	}

	glyphs, err := r.store.List(ctx, lexicon.ListOpts{Gate: req.Gate})
	if err != nil {
		return r.interrupted(ctx, err, start, nil, k)
	}

	var hits []Hit
	for i, g := range glyphs {
		if ctx.Err() != nil {
			r.log.Warn("retrieval deadline hit",
				zap.Int("scored", i), zap.Int("total", len(glyphs)), zap.Duration("elapsed", time.Since(start)))
			return Result{Hits: r.rank(hits, k), Partial: true}, nil
		}
		if h, ok := r.score(a, q, g); ok {
			hits = append(hits, h)
		}
	}
	return Result{Hits: r.rank(hits, k)}, nil
}

// interrupted turns a store error into a partial result when it was caused
// by the deadline, and passes any other error through.
func (r *Retriever) interrupted(ctx context.Context, err error, start time.Time, hits []Hit, k int) (Result, error) {
	if ctx.Err() != nil {
		r.log.Warn("retrieval deadline hit before scoring", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return Result{Hits: r.rank(hits, k), Partial: true}, nil
	}
	return Result{}, fmt.Errorf("retrieve: %w", err)
}

// query holds the lemma sets of one request.
type query struct {
	message map[string]struct{}
	context map[string]struct{}
}

func newQuery(a *textnorm.Analyzer, message string, prior []string) query {
	q := query{message: make(map[string]struct{}), context: make(map[string]struct{})}
	for _, l := range a.Lemmas(message) {
		q.message[l] = struct{}{}
	}
	for _, turn := range prior {
		for _, l := range a.Lemmas(turn) {
			if _, inMessage := q.message[l]; !inMessage {
				q.context[l] = struct{}{}
			}
		}
	}
	return q
}

func (q query) empty() bool { return len(q.message) == 0 && len(q.context) == 0 }

// score sums the hit weights of g: name token, keyword, emotion core named
// in the message and present in the description, prior-turn keyword. Each
// lemma counts once per kind.
func (r *Retriever) score(a *textnorm.Analyzer, q query, g protocol.Glyph) (Hit, bool) {
	w := r.cfg.Retrieval
	h := Hit{Glyph: g}
	add := func(kind, term string, weight int) {
		h.Score += weight
		h.MatchedTerms = append(h.MatchedTerms, kind+":"+term)
	}

	nameSeen := make(map[string]struct{})
	for _, l := range a.Lemmas(g.Name) {
		if _, dup := nameSeen[l]; dup {
			continue
		}
		nameSeen[l] = struct{}{}
		if _, ok := q.message[l]; ok {
			add(HitName, l, w.NameWeight)
		}
	}

	kwSeen := make(map[string]struct{}, len(g.Keywords))
	for _, raw := range g.Keywords {
		kw := a.Lemma(raw)
		if _, dup := kwSeen[kw]; dup {
			continue
		}
		kwSeen[kw] = struct{}{}
		if _, ok := q.message[kw]; ok {
			add(HitKeyword, kw, w.KeywordWeight)
			continue
		}
		if _, ok := q.context[kw]; ok {
			add(HitContext, kw, w.ContextWeight)
		}
	}

	if g.Description != "" {
		desc := strings.ToLower(g.Description)
		for _, core := range r.cores {
			if _, ok := q.message[core]; !ok {
				continue
			}
			if strings.Contains(desc, core) {
				add(HitCore, core, w.CoreWeight)
			}
		}
	}

	return h, h.Score > w.Floor
}

// rank orders hits by score, then frequency desc, then glyphs carrying a
// template, then id asc, and keeps the first k.
func (r *Retriever) rank(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Glyph.Frequency != b.Glyph.Frequency {
			return a.Glyph.Frequency > b.Glyph.Frequency
		}
		if at, bt := a.Glyph.HasTemplate(), b.Glyph.HasTemplate(); at != bt {
			return at
		}
		return a.Glyph.ID < b.Glyph.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits
}
