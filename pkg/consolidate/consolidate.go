// Package consolidate finds duplicate and noisy glyphs, writes prune reports,
// and archives (never deletes) the rows a run selects. Every apply is
// preceded by a backup; a run that cannot back up leaves the store untouched.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/backup"
	"glyphos/pkg/config"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

// Row is one line of the dry-run report: the glyphs a run would archive from
// one normalized-key group (strict-dup) or one gate (gate-cap).
type Row struct {
	NormalizedKey string
	Count         int
	KeepID        int64 // 0 when the row keeps nothing (gate-cap rows)
	RemoveIDs     []int64
	SampleNames   []string
	Reason        string   // archive reason written to the archive table
	Reasons       []string // noise flags and criteria behind the decision
}

// Review is a flagged glyph that is not eligible for automatic archive.
type Review struct {
	GlyphID       int64
	NormalizedKey string
	Name          string
	Flags         []string
}

// Plan is the candidate set of one run.
type Plan struct {
	RunID  string
	Rows   []Row
	Review []Review
}

// RemoveCount returns the number of glyphs the plan archives.
func (p Plan) RemoveCount() int {
	n := 0
	for _, r := range p.Rows {
		n += len(r.RemoveIDs)
	}
	return n
}

// Failure records a row whose archive failed; the run continued past it.
type Failure struct {
	GlyphID int64
	Err     error
}

// Result reports one run. Reports are written even when the run aborts.
type Result struct {
	RunID        string
	DryRunReport string
	ReviewReport string
	BackupPath   string
	PostReport   string
	Archived     []protocol.ArchivedGlyph
	Failures     []Failure
	Partial      bool
}

// Options selects what a run plans.
type Options struct {
	Strict   bool
	GateCaps bool
}

// Pruner plans and applies consolidation runs against one store.
type Pruner struct {
	store     *lexicon.Store
	backups   *backup.Manager
	cfg       *config.Config
	detector  *Detector
	reportDir string
	now       func() time.Time
	newRunID  func() string
	log       *zap.Logger
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pruner) { p.log = logging.OrNop(l) }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// WithRunID overrides run id generation.
func WithRunID(f func() string) Option {
	return func(p *Pruner) { p.newRunID = f }
}

// New returns a Pruner writing reports to reportDir. An empty reportDir means
// a "reports" directory next to the database.
func New(store *lexicon.Store, backups *backup.Manager, cfg *config.Config, reportDir string, opts ...Option) *Pruner {
	if reportDir == "" {
		reportDir = filepath.Join(filepath.Dir(store.Path()), protocol.ReportsDir)
	}
	p := &Pruner{
		store:     store,
		backups:   backups,
		cfg:       cfg,
		reportDir: reportDir,
		now:       time.Now,
		newRunID:  uuid.NewString,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.detector = NewDetector(cfg.Lexicon.Boilerplate, p.log)
	return p
}

// Plan computes the candidate set. Strict rows come first; gate caps are
// computed over what strict pruning leaves behind.
func (p *Pruner) Plan(ctx context.Context, opts Options) (Plan, error) {
	active, err := p.store.List(ctx, lexicon.ListOpts{})
	if err != nil {
		return Plan{}, fmt.Errorf("plan: list glyphs: %w", err)
	}
	usage, err := p.store.UsageCounts(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("plan: usage counts: %w", err)
	}

	plan := Plan{RunID: p.newRunID()}
	groups := groupByKey(active)
	removed := make(map[int64]bool)

	if opts.Strict {
		for _, key := range sortedKeys(groups) {
			members := groups[key]
			row, ok := p.strictRow(key, members, usage)
			if !ok {
				continue
			}
			for _, id := range row.RemoveIDs {
				removed[id] = true
			}
			plan.Rows = append(plan.Rows, row)
		}
	}

	for _, g := range active {
		if removed[g.ID] {
			continue
		}
		flags := p.detector.Flags(g, len(groups[g.NormalizedKey]))
		if len(flags) > 0 {
			plan.Review = append(plan.Review, Review{
				GlyphID: g.ID, NormalizedKey: g.NormalizedKey, Name: g.Name, Flags: flags,
			})
		}
	}

	if opts.GateCaps {
		plan.Rows = append(plan.Rows, p.gateCapRows(active, removed)...)
	}
	return plan, nil
}

// strictRow applies the strict-prune criteria: a group of at least
// StrictGroupMin members, none used and none carrying a response template.
// The lowest id is kept.
func (p *Pruner) strictRow(key string, members []protocol.Glyph, usage map[int64]int) (Row, bool) {
	if len(members) < p.cfg.Prune.StrictGroupMin {
		return Row{}, false
	}
	for _, g := range members {
		if usage[g.ID] > 0 || g.HasTemplate() {
			return Row{}, false
		}
	}

	row := Row{
		NormalizedKey: key,
		Count:         len(members),
		KeepID:        members[0].ID,
		Reason:        protocol.ReasonStrictDup,
	}
	reasons := []string{FlagDuplicate}
	for _, g := range members {
		for _, f := range p.detector.Flags(g, len(members)) {
			if !slices.Contains(reasons, f) {
				reasons = append(reasons, f)
			}
		}
		if g.ID == row.KeepID {
			continue
		}
		row.RemoveIDs = append(row.RemoveIDs, g.ID)
		if len(row.SampleNames) < 3 && !slices.Contains(row.SampleNames, g.Name) {
			row.SampleNames = append(row.SampleNames, g.Name)
		}
	}
	row.Reasons = append(reasons, "unused", "no-template")
	return row, true
}

// DryRun plans and writes the dry-run and review reports without touching
// the store.
func (p *Pruner) DryRun(ctx context.Context, opts Options) (Plan, Result, error) {
	plan, err := p.Plan(ctx, opts)
	if err != nil {
		return Plan{}, Result{}, err
	}
	res := Result{RunID: plan.RunID}
	if err := p.writePlanReports(plan, &res); err != nil {
		return plan, res, err
	}
	p.log.Info("prune dry run",
		zap.String("run_id", plan.RunID), zap.Int("rows", len(plan.Rows)),
		zap.Int("remove", plan.RemoveCount()), zap.Int("review", len(plan.Review)))
	return plan, res, nil
}

// Apply plans, writes the dry-run report, takes a backup and archives every
// planned glyph in its own transaction. A backup failure returns
// *protocol.BackupFailedError with the store untouched. Row failures are
// recorded and the run continues; cancellation between rows stops the run
// with Partial set. The post report is written in every case past the backup.
func (p *Pruner) Apply(ctx context.Context, opts Options) (Result, error) {
	plan, res, err := p.DryRun(ctx, opts)
	if err != nil {
		return res, err
	}

	path, err := p.backups.Create(ctx)
	if err != nil {
		p.log.Error("prune refused: backup failed", zap.String("run_id", plan.RunID), zap.Error(err))
		var bf *protocol.BackupFailedError
		if !errors.As(err, &bf) {
			err = &protocol.BackupFailedError{Err: err}
		}
		return res, err
	}
	res.BackupPath = path

	var runErr error
rows:
	for _, row := range plan.Rows {
		for _, id := range row.RemoveIDs {
			if err := ctx.Err(); err != nil {
				res.Partial = true
				runErr = &protocol.TimeoutExceededError{Op: "prune apply", Index: len(res.Archived) - 1}
				break rows
			}
			a, err := p.store.Archive(ctx, id, row.Reason, plan.RunID)
			if err != nil {
				p.log.Warn("archive failed", zap.Int64("glyph_id", id), zap.Error(err))
				res.Failures = append(res.Failures, Failure{GlyphID: id, Err: err})
				continue
			}
			res.Archived = append(res.Archived, a)
		}
	}

	post, err := writePostReport(p.reportPath("post", plan.RunID), res.Archived)
	if err != nil {
		return res, errors.Join(runErr, err)
	}
	res.PostReport = post

	p.log.Info("prune applied",
		zap.String("run_id", plan.RunID), zap.Int("archived", len(res.Archived)),
		zap.Int("failures", len(res.Failures)), zap.Bool("partial", res.Partial))
	return res, runErr
}

func (p *Pruner) writePlanReports(plan Plan, res *Result) error {
	path, err := writeDryRunReport(p.reportPath("dryrun", plan.RunID), plan.Rows)
	if err != nil {
		return err
	}
	res.DryRunReport = path
	review, err := writeReviewReport(p.reportPath("review", plan.RunID), plan.Review)
	if err != nil {
		return err
	}
	res.ReviewReport = review
	return nil
}

// reportPath names a report file: prune-<kind>-<UTC timestamp>-<run id prefix>.csv.
func (p *Pruner) reportPath(kind, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	ts := p.now().UTC().Format("20060102T150405Z")
	return filepath.Join(p.reportDir, fmt.Sprintf("prune-%s-%s-%s.csv", kind, ts, short))
}

func groupByKey(glyphs []protocol.Glyph) map[string][]protocol.Glyph {
	groups := make(map[string][]protocol.Glyph)
	for _, g := range glyphs {
		groups[g.NormalizedKey] = append(groups[g.NormalizedKey], g)
	}
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = protocol.FormatID(id)
	}
	return strings.Join(parts, ",")
}
