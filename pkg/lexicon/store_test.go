package lexicon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

// fixedClock advances one second per call so timestamps are ordered and
// deterministic.
func fixedClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *lexicon.Store {
	t.Helper()
	s, err := lexicon.Open(context.Background(), ":memory:", lexicon.WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestInsert_AssignsIDAndDerivedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.Insert(ctx, protocol.Glyph{
		Name:        "  Still Insight ",
		Description: "Quiet revelation.",
		Gate:        "stillness",
		Keywords:    []string{"Quiet", "revelation", "quiet", "ok"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if g.ID <= 0 {
		t.Fatalf("expected positive id, got %d", g.ID)
	}
	if g.Name != "Still Insight" || g.NormalizedKey != "still insight" {
		t.Errorf("unexpected name/key: %q / %q", g.Name, g.NormalizedKey)
	}
	if g.DisplayName != "Still Insight" {
		t.Errorf("display name should default to name, got %q", g.DisplayName)
	}
	if !reflect.DeepEqual(g.Keywords, []string{"quiet", "revelation"}) {
		t.Errorf("keywords = %v", g.Keywords)
	}

	got, err := s.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActivatedSeq == 0 {
		t.Error("activated_seq not stamped")
	}
	if got.ResponseTemplate != nil {
		t.Error("response template should be nil")
	}
}

func TestInsert_Validation(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"", "   ", "!!!"} {
		_, err := s.Insert(context.Background(), protocol.Glyph{Name: name})
		var inv *protocol.InvalidInputError
		if !errors.As(err, &inv) {
			t.Errorf("Insert(%q): expected InvalidInputError, got %v", name, err)
		}
	}
}

func TestInsert_DuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Insert(ctx, protocol.Glyph{Name: "Still Insight"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = s.Insert(ctx, protocol.Glyph{Name: "still-insight!"})

	var dup *protocol.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.ExistingID != first.ID || dup.NormalizedKey != "still insight" {
		t.Errorf("unexpected error fields: %+v", dup)
	}
}

func TestUpsertBatch_MergeOnConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orig, err := s.Insert(ctx, protocol.Glyph{
		Name: "Still Insight", Keywords: []string{"quiet", "revelation"}, Frequency: 1,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := s.UpsertBatch(ctx, []protocol.Glyph{{
		Name: "still-insight!", Description: "Quiet revelation.", Keywords: []string{"still", "quiet"}, Frequency: 2,
	}}, lexicon.ConflictMerge)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Merged != 1 || res.Inserted != 0 {
		t.Errorf("expected merged=1 inserted=0, got %+v", res)
	}

	all, err := s.List(ctx, lexicon.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 active glyph, got %d", len(all))
	}
	g := all[0]
	if g.ID != orig.ID || g.Name != "Still Insight" {
		t.Errorf("merge should keep the existing row: %+v", g)
	}
	if !reflect.DeepEqual(g.Keywords, []string{"quiet", "revelation", "still"}) {
		t.Errorf("keywords = %v", g.Keywords)
	}
	if g.Frequency != 3 {
		t.Errorf("frequency = %d, want 3", g.Frequency)
	}
	if g.Description != "Quiet revelation." {
		t.Errorf("empty description should be filled, got %q", g.Description)
	}
}

func TestUpsertBatch_KeepsExistingDescription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, protocol.Glyph{Name: "Ache", Description: "Original."}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.UpsertBatch(ctx, []protocol.Glyph{{Name: "ache", Description: "Replacement."}}, lexicon.ConflictMerge); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := s.FindByKey(ctx, "ache")
	if got[0].Description != "Original." {
		t.Errorf("description overwritten: %q", got[0].Description)
	}
}

func TestUpsertBatch_Skip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, protocol.Glyph{Name: "Ache", Keywords: []string{"ache"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := s.UpsertBatch(ctx, []protocol.Glyph{
		{Name: "ACHE", Keywords: []string{"pain"}},
		{Name: "Joy Burst"},
	}, lexicon.ConflictSkip)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Skipped != 1 || res.Inserted != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.IDs[0] != 0 || res.IDs[1] == 0 {
		t.Errorf("unexpected ids %v", res.IDs)
	}
	got, _ := s.FindByKey(ctx, "ache")
	if !reflect.DeepEqual(got[0].Keywords, []string{"ache"}) {
		t.Errorf("skip must not touch existing row: %v", got[0].Keywords)
	}
}

func TestUpsertBatch_FailRollsBackWholeBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Insert(ctx, protocol.Glyph{Name: "Ache"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := s.UpsertBatch(ctx, []protocol.Glyph{
		{Name: "Joy Burst"},
		{Name: "Grief Fragment"},
		{Name: "ache"},
	}, lexicon.ConflictFail)

	var batch *protocol.BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if batch.Index != 2 {
		t.Errorf("offending index = %d, want 2", batch.Index)
	}
	var dup *protocol.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateKeyError inside batch error, got %v", err)
	}

	all, _ := s.List(ctx, lexicon.ListOpts{})
	if len(all) != 1 {
		t.Errorf("batch not rolled back: %d active glyphs", len(all))
	}
}

func TestUpsertBatch_InvalidRowRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, []protocol.Glyph{{Name: "Joy Burst"}, {Name: ""}}, lexicon.ConflictMerge)
	var batch *protocol.BatchError
	if !errors.As(err, &batch) || batch.Index != 1 {
		t.Fatalf("expected BatchError at index 1, got %v", err)
	}
	all, _ := s.List(ctx, lexicon.ListOpts{})
	if len(all) != 0 {
		t.Errorf("expected empty store after rollback, got %d", len(all))
	}
}

func TestUpsertBatch_DuplicatesWithinBatchMerge(t *testing.T) {
	s := newTestStore(t)
	res, err := s.UpsertBatch(context.Background(), []protocol.Glyph{
		{Name: "Joy Burst", Keywords: []string{"joy"}},
		{Name: "joy-burst", Keywords: []string{"delight"}},
	}, lexicon.ConflictMerge)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Inserted != 1 || res.Merged != 1 || res.IDs[0] != res.IDs[1] {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestParseConflictMode(t *testing.T) {
	for in, want := range map[string]lexicon.ConflictMode{
		"merge": lexicon.ConflictMerge, "": lexicon.ConflictMerge, "SKIP": lexicon.ConflictSkip, "fail": lexicon.ConflictFail,
	} {
		got, err := lexicon.ParseConflictMode(in)
		if err != nil || got != want {
			t.Errorf("ParseConflictMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := lexicon.ParseConflictMode("overwrite"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestArchiveRestore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.Insert(ctx, protocol.Glyph{
		Name: "Ache of Recognition", Description: "Being seen hurts.", Gate: "recognition",
		Keywords: []string{"ache", "recognition", "seen"}, Frequency: 4,
		ResponseTemplate: strPtr("Being seen can ache."),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	a, err := s.Archive(ctx, g.ID, protocol.ReasonManual, "run-1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if a.ArchiveReason != protocol.ReasonManual || a.ArchivedAt.IsZero() {
		t.Errorf("archive metadata missing: %+v", a)
	}

	if _, err := s.Get(ctx, g.ID); err == nil {
		t.Fatal("archived glyph still active")
	}
	archived, err := s.ListArchived(ctx, lexicon.ArchivedOpts{})
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected 1 archived row, got %d (%v)", len(archived), err)
	}

	restored, err := s.Restore(ctx, a.ArchivedID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, err := s.Get(ctx, g.ID)
	if err != nil {
		t.Fatalf("get restored: %v", err)
	}
	if restored.ID != g.ID {
		t.Errorf("restore changed id: %d -> %d", g.ID, restored.ID)
	}
	// Activation seq is the only field allowed to differ.
	got.ActivatedSeq, g.ActivatedSeq = 0, 0
	if !reflect.DeepEqual(got, g) {
		t.Errorf("restore(archive(g)) != g\n got: %+v\nwant: %+v", got, g)
	}

	archived, _ = s.ListArchived(ctx, lexicon.ArchivedOpts{})
	if len(archived) != 0 {
		t.Errorf("restored row still in archive")
	}

	versions, err := s.Versions(ctx, g.ID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	var changes []protocol.ChangeKind
	for _, v := range versions {
		changes = append(changes, v.Change)
	}
	want := []protocol.ChangeKind{protocol.ChangeInsert, protocol.ChangeArchive, protocol.ChangeRestore}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("version trail = %v, want %v", changes, want)
	}
}

func TestArchive_Errors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Archive(ctx, 99, protocol.ReasonManual, "")
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	g, _ := s.Insert(ctx, protocol.Glyph{Name: "Ache"})
	if _, err := s.Archive(ctx, g.ID, " ", ""); err == nil {
		t.Error("expected error for empty reason")
	}

	if _, err := s.Restore(ctx, 42); !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError on restore, got %v", err)
	}
}

func TestRestore_ConflictWithLaterInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.Insert(ctx, protocol.Glyph{Name: "Grief Fragment"})
	a, err := s.Archive(ctx, g.ID, protocol.ReasonManual, "")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	later, err := s.Insert(ctx, protocol.Glyph{Name: "grief fragment"})
	if err != nil {
		t.Fatalf("insert after archive: %v", err)
	}

	_, err = s.Restore(ctx, a.ArchivedID)
	var conflict *protocol.DedupConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected DedupConflictError, got %v", err)
	}
	if conflict.ConflictID != later.ID {
		t.Errorf("conflict id = %d, want %d", conflict.ConflictID, later.ID)
	}
	// The archived row is untouched by a refused restore.
	if _, err := s.GetArchived(ctx, a.ArchivedID); err != nil {
		t.Errorf("archived row lost after refused restore: %v", err)
	}
}

func TestRestore_LegacyGroupOneAtATime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids, err := s.ImportLegacy(ctx, []protocol.Glyph{
		{Name: "Grief Fragment"}, {Name: "grief-fragment"}, {Name: "GRIEF FRAGMENT"},
	}, "import-1")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	a1, err := s.Archive(ctx, ids[1], protocol.ReasonStrictDup, "run")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	a2, err := s.Archive(ctx, ids[2], protocol.ReasonStrictDup, "run")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	// The keeper predates both archives, so the first restore succeeds.
	if _, err := s.Restore(ctx, a1.ArchivedID); err != nil {
		t.Fatalf("first restore: %v", err)
	}
	active, _ := s.FindByKey(ctx, "grief fragment")
	if len(active) != 2 {
		t.Fatalf("expected 2 active after restore, got %d", len(active))
	}

	_, err = s.Restore(ctx, a2.ArchivedID)
	var conflict *protocol.DedupConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second restore: expected DedupConflictError, got %v", err)
	}
}

func TestEdit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.Insert(ctx, protocol.Glyph{Name: "Ache"})
	other, _ := s.Insert(ctx, protocol.Glyph{Name: "Joy Burst"})

	edited, err := s.Edit(ctx, g.ID, lexicon.GlyphEdit{
		ResponseTemplate: strPtr("Some aches ask to be witnessed."),
		Gate:             strPtr("grief"),
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.HasTemplate() || edited.Gate != "grief" {
		t.Errorf("edit not applied: %+v", edited)
	}

	cleared, err := s.Edit(ctx, g.ID, lexicon.GlyphEdit{ResponseTemplate: strPtr("")})
	if err != nil {
		t.Fatalf("clear template: %v", err)
	}
	if cleared.ResponseTemplate != nil {
		t.Error("empty template should clear to nil")
	}

	renamed, err := s.Edit(ctx, g.ID, lexicon.GlyphEdit{Name: strPtr("Old Ache")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.NormalizedKey != "old ache" || renamed.DisplayName != "Old Ache" {
		t.Errorf("rename did not rederive key/display: %+v", renamed)
	}

	_, err = s.Edit(ctx, g.ID, lexicon.GlyphEdit{Name: strPtr("joy burst")})
	var dup *protocol.DuplicateKeyError
	if !errors.As(err, &dup) || dup.ExistingID != other.ID {
		t.Errorf("expected DuplicateKeyError against %d, got %v", other.ID, err)
	}
}

func TestSearchAndListByGate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _ = s.Insert(ctx, protocol.Glyph{Name: "Still Insight", Gate: "stillness", Keywords: []string{"quiet", "revelation"}})
	_, _ = s.Insert(ctx, protocol.Glyph{Name: "Ache of Recognition", Gate: "recognition", Keywords: []string{"ache", "seen"}})
	_, _ = s.Insert(ctx, protocol.Glyph{Name: "Boundary Containment", Gate: "boundary", Keywords: []string{"boundary", "limit"}})

	hits, err := s.Search(ctx, []string{"seen", "limit"}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}

	none, err := s.Search(ctx, nil, 10)
	if err != nil || len(none) != 0 {
		t.Errorf("empty search should return nothing: %v %v", none, err)
	}

	gate, err := s.ListByGate(ctx, "stillness")
	if err != nil || len(gate) != 1 || gate[0].Name != "Still Insight" {
		t.Errorf("ListByGate = %v, %v", gate, err)
	}

	vocab, err := s.Vocabulary(ctx)
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}
	want := []string{"ache", "boundary", "limit", "quiet", "revelation", "seen"}
	if !reflect.DeepEqual(vocab, want) {
		t.Errorf("vocabulary = %v, want %v", vocab, want)
	}
}

func TestApplyIngest_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rows := []lexicon.IngestRow{{
		Glyph:       protocol.Glyph{Name: "Still Insight", Description: "Quiet revelation.", Keywords: []string{"quiet", "revelation", "still"}},
		Occurrences: 1,
	}}

	first, err := s.ApplyIngest(ctx, "s1", rows)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if first.Outcomes[0] != lexicon.OutcomeInserted {
		t.Errorf("first outcome = %v", first.Outcomes[0])
	}
	second, err := s.ApplyIngest(ctx, "s1", rows)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if second.Outcomes[0] != lexicon.OutcomeUnchanged {
		t.Errorf("second outcome = %v", second.Outcomes[0])
	}

	all, _ := s.List(ctx, lexicon.ListOpts{})
	if len(all) != 1 || all[0].Frequency != 1 || all[0].Source != "s1" {
		t.Fatalf("unexpected store state: %+v", all)
	}

	// A higher occurrence count from the same source adds only the difference.
	rows[0].Occurrences = 3
	if _, err := s.ApplyIngest(ctx, "s1", rows); err != nil {
		t.Fatalf("third ingest: %v", err)
	}
	all, _ = s.List(ctx, lexicon.ListOpts{})
	if all[0].Frequency != 3 {
		t.Errorf("frequency = %d, want 3", all[0].Frequency)
	}
	if wm, _ := s.Watermark(ctx, "s1", "still insight"); wm != 3 {
		t.Errorf("watermark = %d, want 3", wm)
	}

	// A different source counts separately.
	if _, err := s.ApplyIngest(ctx, "s2", rows); err != nil {
		t.Fatalf("other source ingest: %v", err)
	}
	all, _ = s.List(ctx, lexicon.ListOpts{})
	if all[0].Frequency != 6 {
		t.Errorf("frequency = %d, want 6", all[0].Frequency)
	}
}

func TestApplyIngest_DoesNotResurrectArchived(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g, _ := s.Insert(ctx, protocol.Glyph{Name: "Ache"})
	if _, err := s.Archive(ctx, g.ID, protocol.ReasonManual, ""); err != nil {
		t.Fatalf("archive: %v", err)
	}
	res, err := s.ApplyIngest(ctx, "s1", []lexicon.IngestRow{{Glyph: protocol.Glyph{Name: "ache"}, Occurrences: 1}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcomes[0] != lexicon.OutcomeArchived {
		t.Errorf("outcome = %v, want archived", res.Outcomes[0])
	}
	if all, _ := s.List(ctx, lexicon.ListOpts{}); len(all) != 0 {
		t.Errorf("archived key resurrected")
	}
}

func TestDefaultKeywordPolicyDropsStopwords(t *testing.T) {
	s := newTestStore(t)
	g, err := s.Insert(context.Background(), protocol.Glyph{
		Name: "Grief Because", Keywords: []string{"because", "the", "grief", "2024", "sorrow"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !reflect.DeepEqual(g.Keywords, []string{"grief", "sorrow"}) {
		t.Errorf("keywords = %v, want [grief sorrow]", g.Keywords)
	}
}

func TestKeywordPolicy(t *testing.T) {
	stop := map[string]bool{"with": true}
	s, err := lexicon.Open(context.Background(), ":memory:",
		lexicon.WithKeywordPolicy(func(k string) bool { return len(k) > 2 && !stop[k] }))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	g, err := s.Insert(context.Background(), protocol.Glyph{Name: "Ache", Keywords: []string{"with", "ache", "of"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !reflect.DeepEqual(g.Keywords, []string{"ache"}) {
		t.Errorf("keywords = %v", g.Keywords)
	}
}

func TestUsageLog_AppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g, _ := s.Insert(ctx, protocol.Glyph{Name: "Ache"})

	var appended []protocol.UsageEntry
	for i := range 3 {
		e, err := s.RecordUsage(ctx, protocol.UsageEntry{
			GlyphID: g.ID, InputHash: lexicon.HashInput("hello"), ConversationID: "c1", TurnIndex: i,
		})
		if err != nil {
			t.Fatalf("record usage: %v", err)
		}
		appended = append(appended, e)
	}

	got, err := s.UsageLog(ctx, 0)
	if err != nil {
		t.Fatalf("usage log: %v", err)
	}
	if !reflect.DeepEqual(got, appended) {
		t.Errorf("usage log != appended entries\n got: %+v\nwant: %+v", got, appended)
	}

	counts, _ := s.UsageCounts(ctx)
	if counts[g.ID] != 3 {
		t.Errorf("usage count = %d", counts[g.ID])
	}

	if _, err := s.RecordUsage(ctx, protocol.UsageEntry{}); err == nil {
		t.Error("expected error for missing glyph id")
	}
}

func TestHashInput_StableAcrossWhitespace(t *testing.T) {
	if lexicon.HashInput("I feel  so tired") != lexicon.HashInput("I feel so tired ") {
		t.Error("hash should be computed over cleaned text")
	}
	if len(lexicon.HashInput("x")) != 64 {
		t.Error("expected hex sha-256")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, _ = s.ImportLegacy(ctx, []protocol.Glyph{{Name: "Ache", Gate: "grief"}, {Name: "ache"}, {Name: "Joy", Gate: "joy"}}, "")

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Active != 3 || st.DuplicateGroups != 1 || st.ByGate["grief"] != 1 || st.ByGate[""] != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSnapshotTo(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := lexicon.Open(ctx, filepath.Join(dir, "lexicon.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	_, _ = s.Insert(ctx, protocol.Glyph{Name: "Ache"})

	dest := filepath.Join(dir, "copy.db")
	if err := s.SnapshotTo(ctx, dest); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}

	copyStore, err := lexicon.Open(ctx, dest)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer copyStore.Close()
	all, _ := copyStore.List(ctx, lexicon.ListOpts{})
	if len(all) != 1 {
		t.Errorf("snapshot holds %d glyphs, want 1", len(all))
	}

	if err := s.SnapshotTo(ctx, dest); err == nil {
		t.Error("expected error when destination exists")
	}
}

func TestOpen_UnavailablePath(t *testing.T) {
	_, err := lexicon.Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "lexicon.db"))
	var unavailable *protocol.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StoreUnavailableError, got %v", err)
	}
}

func TestWriteFailuresAreTyped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	g, err := s.Insert(ctx, protocol.Glyph{Name: "Still Insight", Gate: "stillness"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.DB().ExecContext(ctx, `
		CREATE TRIGGER reject_inserts BEFORE INSERT ON glyph_lexicon BEGIN SELECT RAISE(FAIL, 'disk I/O error'); END;
		CREATE TRIGGER reject_archive BEFORE INSERT ON glyph_lexicon_archived BEGIN SELECT RAISE(FAIL, 'disk I/O error'); END;`); err != nil {
		t.Fatalf("create triggers: %v", err)
	}

	_, err = s.Insert(ctx, protocol.Glyph{Name: "Tidal Grief", Gate: "grief"})
	var write *protocol.StoreWriteError
	if !errors.As(err, &write) {
		t.Fatalf("insert: expected StoreWriteError, got %v", err)
	}

	_, err = s.Archive(ctx, g.ID, protocol.ReasonManual, "")
	if !errors.As(err, &write) {
		t.Fatalf("archive: expected StoreWriteError, got %v", err)
	}
	if _, err := s.Get(ctx, g.ID); err != nil {
		t.Errorf("failed archive must leave the glyph active: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := protocol.WriteFailed("insert glyph", cancelled.Err()); errors.As(err, &write) {
		t.Error("cancellation must not be reported as a store write failure")
	}
}
