package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileResult is reported once per processed inbox file.
type FileResult struct {
	Path   string
	Report Report
	Err    error
}

// Watcher ingests candidate files dropped into an inbox directory.
type Watcher struct {
	in       *Ingester
	dir      string
	onResult func(FileResult)
}

// NewWatcher returns a Watcher over dir. onResult may be nil.
func NewWatcher(in *Ingester, dir string, onResult func(FileResult)) *Watcher {
	if onResult == nil {
		onResult = func(FileResult) {}
	}
	return &Watcher{in: in, dir: dir, onResult: onResult}
}

// Run ingests every *.json file already in the directory, then every file
// created or written until ctx is done. A file that fails to parse (for
// example while it is still being written) is reported and retried on its
// next write event.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	existing, err := filepath.Glob(filepath.Join(w.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scan inbox: %w", err)
	}
	sort.Strings(existing)
	for _, path := range existing {
		w.process(ctx, path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
				continue
			}
			w.process(ctx, ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.in.log.Warn("inbox watcher error", zap.String("dir", w.dir), zap.Error(err))
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() || info.Size() == 0 {
		return
	}
	f, err := LoadCandidateFile(path)
	if err != nil {
		w.in.log.Warn("inbox file not ingested", zap.String("path", path), zap.Error(err))
		w.onResult(FileResult{Path: path, Err: err})
		return
	}
	rep, err := w.in.IngestCandidates(ctx, f.SourceID, f.Items)
	if err != nil {
		w.in.log.Error("inbox ingest failed", zap.String("path", path), zap.Error(err))
	}
	w.onResult(FileResult{Path: path, Report: rep, Err: err})
}
