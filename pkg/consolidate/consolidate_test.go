package consolidate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glyphos/pkg/backup"
	"glyphos/pkg/config"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

type fixture struct {
	store   *lexicon.Store
	pruner  *Pruner
	cfg     *config.Config
	reports string
	backups string
}

func newFixture(t *testing.T, mutate func(*config.Config), backupDir string) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store, err := lexicon.Open(context.Background(), filepath.Join(dir, "lexicon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if backupDir == "" {
		backupDir = filepath.Join(dir, "backups")
	}
	reports := filepath.Join(dir, "reports")
	clock := time.Date(2026, 10, 14, 3, 0, 0, 0, time.UTC)
	mgr := backup.New(backupDir, store, backup.WithClock(func() time.Time { return clock }))
	p := New(store, mgr, cfg, reports,
		WithClock(func() time.Time { return clock }),
		WithRunID(func() string { return "run-0001-test" }))
	return &fixture{store: store, pruner: p, cfg: cfg, reports: reports, backups: backupDir}
}

func seedGriefGroup(t *testing.T, s *lexicon.Store, n int) []int64 {
	t.Helper()
	variants := []string{"Grief Fragment", "grief fragment", "GRIEF FRAGMENT", "grief-fragment", "Grief  Fragment"}
	glyphs := make([]protocol.Glyph, n)
	for i := range n {
		glyphs[i] = protocol.Glyph{
			Name:     variants[i%len(variants)],
			Gate:     "grief",
			Keywords: []string{"grief", "fragment"},
		}
	}
	ids, err := s.ImportLegacy(context.Background(), glyphs, "legacy-1")
	require.NoError(t, err)
	return ids
}

func TestApply_StrictPruneAndRestore(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	ids := seedGriefGroup(t, f.store, 12)

	res, err := f.pruner.Apply(ctx, Options{Strict: true})
	require.NoError(t, err)
	require.Len(t, res.Archived, 11)
	assert.Empty(t, res.Failures)
	assert.False(t, res.Partial)

	active, err := f.store.FindByKey(ctx, "grief fragment")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ids[0], active[0].ID)

	info, err := os.Stat(res.BackupPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, f.backups, filepath.Dir(res.BackupPath))

	post, err := ReadReport(res.PostReport)
	require.NoError(t, err)
	require.Len(t, post, 12)
	assert.Equal(t, postHeader, post[0])
	for i, rec := range post[1:] {
		assert.Equal(t, protocol.FormatID(ids[i+1]), rec[1])
		assert.Equal(t, "grief fragment", rec[2])
		assert.Equal(t, protocol.ReasonStrictDup, rec[4])
	}

	dry, err := ReadReport(res.DryRunReport)
	require.NoError(t, err)
	require.Len(t, dry, 2)
	assert.Equal(t, dryRunHeader, dry[0])
	assert.Equal(t, "grief fragment", dry[1][0])
	assert.Equal(t, "12", dry[1][1])
	assert.Equal(t, protocol.FormatID(ids[0]), dry[1][2])
	assert.Len(t, strings.Split(dry[1][3], ","), 11)
	assert.Contains(t, dry[1][5], FlagDuplicate)

	// Restore one archived member, then a second one from the same group.
	_, err = f.store.Restore(ctx, res.Archived[0].ArchivedID)
	require.NoError(t, err)
	active, err = f.store.FindByKey(ctx, "grief fragment")
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = f.store.Restore(ctx, res.Archived[1].ArchivedID)
	var conflict *protocol.DedupConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "grief fragment", conflict.NormalizedKey)
}

func TestApply_BackupFailureLeavesStoreUntouched(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	f := newFixture(t, nil, filepath.Join(blocker, "backups"))
	ctx := context.Background()
	seedGriefGroup(t, f.store, 12)

	res, err := f.pruner.Apply(ctx, Options{Strict: true})
	var bf *protocol.BackupFailedError
	require.ErrorAs(t, err, &bf)
	assert.Empty(t, res.Archived)
	assert.Empty(t, res.PostReport)

	active, err := f.store.FindByKey(ctx, "grief fragment")
	require.NoError(t, err)
	assert.Len(t, active, 12)

	dry, err := ReadReport(res.DryRunReport)
	require.NoError(t, err)
	assert.Len(t, dry, 2, "dry-run report is written even when the backup fails")
}

func TestApply_NoCandidatesStillWritesReports(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	_, err := f.store.Insert(ctx, protocol.Glyph{Name: "Still Insight", Keywords: []string{"quiet"}})
	require.NoError(t, err)

	res, err := f.pruner.Apply(ctx, Options{Strict: true})
	require.NoError(t, err)
	assert.Empty(t, res.Archived)

	for _, path := range []string{res.DryRunReport, res.PostReport} {
		recs, err := ReadReport(path)
		require.NoError(t, err)
		assert.Len(t, recs, 1, "header only: %s", path)
	}
	st, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Archived)
}

func TestPlan_StrictCriteria(t *testing.T) {
	ctx := context.Background()

	t.Run("group below minimum", func(t *testing.T) {
		f := newFixture(t, nil, "")
		seedGriefGroup(t, f.store, 9)
		plan, err := f.pruner.Plan(ctx, Options{Strict: true})
		require.NoError(t, err)
		assert.Empty(t, plan.Rows)
		assert.Len(t, plan.Review, 9, "duplicates are still flagged for review")
	})

	t.Run("used member blocks the group", func(t *testing.T) {
		f := newFixture(t, nil, "")
		ids := seedGriefGroup(t, f.store, 10)
		_, err := f.store.RecordUsage(ctx, protocol.UsageEntry{GlyphID: ids[4], InputHash: "h"})
		require.NoError(t, err)
		plan, err := f.pruner.Plan(ctx, Options{Strict: true})
		require.NoError(t, err)
		assert.Empty(t, plan.Rows)
	})

	t.Run("templated member blocks the group", func(t *testing.T) {
		f := newFixture(t, nil, "")
		ids := seedGriefGroup(t, f.store, 10)
		tmpl := "Grief needs room."
		_, err := f.store.Edit(ctx, ids[7], lexicon.GlyphEdit{ResponseTemplate: &tmpl})
		require.NoError(t, err)
		plan, err := f.pruner.Plan(ctx, Options{Strict: true})
		require.NoError(t, err)
		assert.Empty(t, plan.Rows)
	})

	t.Run("configured minimum", func(t *testing.T) {
		f := newFixture(t, func(c *config.Config) { c.Prune.StrictGroupMin = 3 }, "")
		ids := seedGriefGroup(t, f.store, 3)
		plan, err := f.pruner.Plan(ctx, Options{Strict: true})
		require.NoError(t, err)
		require.Len(t, plan.Rows, 1)
		assert.Equal(t, ids[0], plan.Rows[0].KeepID)
		assert.Equal(t, ids[1:], plan.Rows[0].RemoveIDs)
		assert.Equal(t, 2, plan.RemoveCount())
	})
}

func TestDryRun_DoesNotTouchStore(t *testing.T) {
	f := newFixture(t, nil, "")
	ctx := context.Background()
	seedGriefGroup(t, f.store, 12)

	plan, res, err := f.pruner.DryRun(ctx, Options{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, 11, plan.RemoveCount())
	assert.Empty(t, res.BackupPath)

	active, err := f.store.FindByKey(ctx, "grief fragment")
	require.NoError(t, err)
	assert.Len(t, active, 12)
	_, err = os.Stat(f.backups)
	assert.True(t, os.IsNotExist(err))
}

func TestApply_GateCaps(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Prune.GateCaps = map[string]int{"grief": 2} }, "")
	ctx := context.Background()

	mk := func(name string, freq int, kws ...string) int64 {
		g, err := f.store.Insert(ctx, protocol.Glyph{Name: name, Gate: "grief", Frequency: freq, Keywords: kws})
		require.NoError(t, err)
		return g.ID
	}
	strong := mk("Ache Beneath Grief", 1, "ache", "grief")
	sorrow := mk("Heavy Sorrow", 1, "sorrow", "heavy")
	plainLow := mk("Plain Thing", 1, "plain")
	plainHigh := mk("Other Thing", 5, "other")
	joy := mk("Bright Joy", 0, "joy")
	_, err := f.store.Edit(ctx, joy, lexicon.GlyphEdit{Gate: strPtr("joy")})
	require.NoError(t, err)

	res, err := f.pruner.Apply(ctx, Options{GateCaps: true})
	require.NoError(t, err)

	var archived []int64
	for _, a := range res.Archived {
		archived = append(archived, a.ID)
		assert.Equal(t, protocol.ReasonGateCap, a.ArchiveReason)
	}
	assert.ElementsMatch(t, []int64{plainLow, plainHigh}, archived)

	kept, err := f.store.ListByGate(ctx, "grief")
	require.NoError(t, err)
	var keptIDs []int64
	for _, g := range kept {
		keptIDs = append(keptIDs, g.ID)
	}
	assert.ElementsMatch(t, []int64{strong, sorrow}, keptIDs)

	_, err = f.store.Get(ctx, joy)
	assert.NoError(t, err, "uncapped gates are left alone")
}

func TestGateCapRows_TieBreak(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prune.GateCaps = map[string]int{"joy": 1}
	p := &Pruner{cfg: cfg}
	rows := p.gateCapRows([]protocol.Glyph{
		{ID: 3, Gate: "joy", NormalizedKey: "a", Frequency: 2},
		{ID: 1, Gate: "joy", NormalizedKey: "b", Frequency: 2},
		{ID: 2, Gate: "joy", NormalizedKey: "c", Frequency: 7},
	}, nil)
	require.Len(t, rows, 2)
	// Equal resonance: frequency 7 kept, then id 1 ranks before id 3.
	assert.Equal(t, []int64{1}, rows[0].RemoveIDs)
	assert.Equal(t, []int64{3}, rows[1].RemoveIDs)
}

func TestResonance(t *testing.T) {
	w := map[string]float64{"grief": 1, "sorrow": 0.6}
	g := protocol.Glyph{NormalizedKey: "grief echo", Keywords: []string{"grief", "sorrow", "echo"}}
	assert.InDelta(t, 1.6, Resonance(g, w), 1e-9)
}

func TestApply_CancelledBetweenRows(t *testing.T) {
	f := newFixture(t, nil, "")
	seedGriefGroup(t, f.store, 12)

	ctx, cancel := context.WithCancel(context.Background())
	f.pruner.backups = backup.New(f.backups, cancelAfterSnapshot{Store: f.store, cancel: cancel})

	res, err := f.pruner.Apply(ctx, Options{Strict: true})
	var timeout *protocol.TimeoutExceededError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, res.Partial)
	assert.Empty(t, res.Archived)
	assert.NotEmpty(t, res.PostReport)
}

// cancelAfterSnapshot cancels the run right after the backup is written.
type cancelAfterSnapshot struct {
	*lexicon.Store
	cancel context.CancelFunc
}

func (c cancelAfterSnapshot) SnapshotTo(ctx context.Context, dest string) error {
	err := c.Store.SnapshotTo(ctx, dest)
	c.cancel()
	return err
}

func TestDetector_Flags(t *testing.T) {
	d := NewDetector(config.DefaultConfig().Lexicon.Boilerplate, nil)
	tests := []struct {
		name  string
		g     protocol.Glyph
		group int
		want  []string
	}{
		{"clean", protocol.Glyph{Name: "Still Insight", Description: "Quiet revelation."}, 1, nil},
		{"long name", protocol.Glyph{Name: strings.Repeat("word ", 13)}, 1, []string{FlagLongName}},
		{"brackets", protocol.Glyph{Name: "Grief [draft]"}, 1, []string{FlagNameChars}},
		{"punctuation", protocol.Glyph{Name: "a!!b??c"}, 1, []string{FlagNonAlnum}},
		{"long description", protocol.Glyph{Name: "Ok Name", Description: strings.Repeat("x", 1001)}, 1, []string{FlagLongDescription}},
		{"newlines", protocol.Glyph{Name: "Ok Name", Description: strings.Repeat("line\n", 7)}, 1, []string{FlagManyNewlines}},
		{"boilerplate", protocol.Glyph{Name: "Chapter 12"}, 1, []string{FlagBoilerplate}},
		{"url", protocol.Glyph{Name: "Ok Name", Description: "see https://example.com"}, 1, []string{FlagBoilerplate}},
		{"duplicate", protocol.Glyph{Name: "Still Insight"}, 2, []string{FlagDuplicate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Flags(tt.g, tt.group))
		})
	}
}

func strPtr(s string) *string { return &s }
