package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitResult(t *testing.T, ch <-chan FileResult) FileResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for inbox result")
		return FileResult{}
	}
}

func TestWatcher_IngestsExistingAndNewFiles(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	in, store := newTestIngester(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"source_id":"inbox-a","items":[{"name":"Still Insight","keywords":["quiet"]}]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not json"), 0o600))

	results := make(chan FileResult, 8)
	w := NewWatcher(in, dir, func(r FileResult) { results <- r })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	first := waitResult(t, results)
	require.NoError(t, first.Err)
	assert.Equal(t, filepath.Join(dir, "a.json"), first.Path)
	assert.Equal(t, 1, first.Report.Inserted)

	// Write to a temp name and rename so the watcher sees a complete file.
	tmp := filepath.Join(dir, "b.json.tmp")
	require.NoError(t, os.WriteFile(tmp,
		[]byte(`{"source_id":"inbox-b","items":[{"name":"Tender Grief","gate":"grief"}]}`), 0o600))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "b.json")))

	var second FileResult
	for second.Report.Inserted == 0 {
		second = waitResult(t, results)
		require.NoError(t, second.Err)
	}
	assert.Equal(t, filepath.Join(dir, "b.json"), second.Path)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	all := activeGlyphs(t, store)
	assert.Len(t, all, 2)
}

func TestWatcher_ReportsBadFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	in, _ := newTestIngester(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"source_id":`), 0o600))

	results := make(chan FileResult, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWatcher(in, dir, func(r FileResult) { results <- r }).Run(ctx) }()

	r := waitResult(t, results)
	assert.Error(t, r.Err)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_MissingDir(t *testing.T) {
	in, _ := newTestIngester(t)
	err := NewWatcher(in, filepath.Join(t.TempDir(), "nope"), nil).Run(context.Background())
	assert.Error(t, err)
}
