// Package backup writes timestamped full copies of the lexicon database before
// destructive operations, and optionally mirrors them to object storage.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/protocol"
)

// Snapshotter writes a consistent copy of a database to a new file.
// *lexicon.Store satisfies it.
type Snapshotter interface {
	SnapshotTo(ctx context.Context, dest string) error
	Path() string
}

// Uploader ships a finished backup file somewhere off-host.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Manager creates and lists backups in one directory.
type Manager struct {
	dir    string
	snap   Snapshotter
	mirror Uploader
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithMirror uploads every new backup through u. Upload failures are logged;
// the local backup still counts as written.
func WithMirror(u Uploader) Option {
	return func(m *Manager) { m.mirror = u }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logging.OrNop(l) }
}

// New returns a Manager writing into dir. An empty dir means a "backups"
// directory next to the database file.
func New(dir string, snap Snapshotter, opts ...Option) *Manager {
	if dir == "" {
		dir = filepath.Join(filepath.Dir(snap.Path()), protocol.BackupsDir)
	}
	m := &Manager{dir: dir, snap: snap, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Name returns the backup file name for the database at dbPath taken at t:
// <db file name>.bak.<UTC timestamp>.
func Name(dbPath string, t time.Time) string {
	return baseName(dbPath) + protocol.BackupSuffix + t.UTC().Format(protocol.BackupTimeFormat)
}

func baseName(dbPath string) string {
	if dbPath == "" || dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		return protocol.DefaultDBName
	}
	return filepath.Base(dbPath)
}

// Create writes a new backup and returns its path. Any failure, including an
// unwritable directory, is reported as *protocol.BackupFailedError; callers
// about to mutate the store must stop.
func (m *Manager) Create(ctx context.Context) (string, error) {
	dest := filepath.Join(m.dir, Name(m.snap.Path(), m.now()))

	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return "", &protocol.BackupFailedError{Path: dest, Err: fmt.Errorf("create backup dir: %w", err)}
	}
	if err := m.snap.SnapshotTo(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return "", &protocol.BackupFailedError{Path: dest, Err: err}
	}
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(dest)
		if err == nil {
			err = fmt.Errorf("empty backup file")
		}
		return "", &protocol.BackupFailedError{Path: dest, Err: err}
	}

	m.log.Info("backup written", zap.String("path", dest), zap.Int64("bytes", info.Size()))

	if m.mirror != nil {
		key, err := m.mirror.Upload(ctx, dest)
		if err != nil {
			m.log.Warn("backup mirror upload failed", zap.String("path", dest), zap.Error(err))
		} else {
			m.log.Info("backup mirrored", zap.String("object", key))
		}
	}
	return dest, nil
}

// Info describes one backup file.
type Info struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	TakenAt time.Time `json:"taken_at"`
}

// List returns the backups of this database in the directory, oldest first.
// A missing directory yields an empty list.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir %s: %w", m.dir, err)
	}

	prefix := baseName(m.snap.Path()) + protocol.BackupSuffix
	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		taken, err := time.Parse(protocol.BackupTimeFormat, strings.TrimPrefix(e.Name(), prefix))
		if err != nil {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", e.Name(), err)
		}
		out = append(out, Info{Path: filepath.Join(m.dir, e.Name()), Size: fi.Size(), TakenAt: taken})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TakenAt.Before(out[j].TakenAt) })
	return out, nil
}
