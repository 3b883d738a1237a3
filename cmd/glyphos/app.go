package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/backup"
	"glyphos/pkg/config"
	"glyphos/pkg/consolidate"
	"glyphos/pkg/feedback"
	"glyphos/pkg/ingest"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
	"glyphos/pkg/service"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

// app is the per-invocation environment: resolved paths, the loaded config,
// the logger and the open store. Commands build it with loadApp and must
// call close.
type app struct {
	paths    *Paths
	cfg      *config.Config
	log      *zap.Logger
	store    *lexicon.Store
	feedback *feedback.Log
}

// loadConfig resolves paths and loads the configuration without opening the
// store. A bad config file is an input error.
func loadConfig(flags *globalFlags) (*Paths, *config.Config, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve paths: %w", err)
	}
	if flags.configPath != "" {
		paths.ConfigPath = flags.configPath
	}
	cfg, err := config.Load(paths.ConfigPath)
	if err != nil {
		return nil, nil, &protocol.InvalidInputError{Field: "config", Reason: err.Error()}
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	paths.applyDefaults(cfg)
	return paths, cfg, nil
}

// loadApp loads the config, builds the logger on the command's stderr and
// opens the store.
func loadApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	paths, cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, &protocol.InvalidInputError{Field: "logging", Reason: err.Error()}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
		return nil, &protocol.StoreUnavailableError{Path: cfg.Store.Path, Err: err}
	}
	store, err := lexicon.Open(ctxOf(cmd), cfg.Store.Path,
		lexicon.WithLogger(log), lexicon.WithKeywordPolicy(cfg.Analyzer().Keep))
	if err != nil {
		return nil, err
	}
	return &app{
		paths:    paths,
		cfg:      cfg,
		log:      log,
		store:    store,
		feedback: feedback.New(store.DB(), feedback.WithLogger(log)),
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", zap.Error(err))
	}
}

// backups returns the backup manager, mirrored when a mirror endpoint is
// configured. A mirror that cannot be set up is logged and skipped; the local
// backup is what guards destructive operations.
func (a *app) backups(ctx context.Context) *backup.Manager {
	opts := []backup.Option{backup.WithLogger(a.log)}
	if a.cfg.Backup.Mirror.Endpoint != "" {
		m, err := backup.NewMirror(a.cfg.Backup.Mirror)
		if err == nil {
			err = m.Init(ctx)
		}
		if err != nil {
			a.log.Warn("backup mirror disabled", zap.Error(err))
		} else {
			opts = append(opts, backup.WithMirror(m))
		}
	}
	return backup.New(a.cfg.Backup.Dir, a.store, opts...)
}

func (a *app) pruner(ctx context.Context) *consolidate.Pruner {
	return consolidate.New(a.store, a.backups(ctx), a.cfg, a.cfg.Store.ReportDir, consolidate.WithLogger(a.log))
}

func (a *app) ingester() *ingest.Ingester {
	return ingest.New(a.store, a.cfg, ingest.WithLogger(a.log))
}

func (a *app) service() *service.Service {
	return service.New(a.store, a.feedback, a.cfg, service.WithLogger(a.log))
}

// ctxOf returns the command context, or Background when run without one.
func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitBadInput     = 2
	exitStore        = 3
	exitPrecondition = 4
)

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch protocol.ErrorKind(err) {
	case "":
		return exitOK
	case protocol.KindInvalidInput, protocol.KindNotFound, protocol.KindDuplicateKey:
		return exitBadInput
	case protocol.KindStoreUnavailable, protocol.KindStoreWrite:
		return exitStore
	case protocol.KindBackupFailed, protocol.KindDedupConflict:
		return exitPrecondition
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return exitBadInput
	}
	return exitFailure
}

// usageError reports a bad command line as invalid input.
func usageError(reason string) error {
	return &protocol.InvalidInputError{Field: "arguments", Reason: reason}
}

// exactArgs is cobra.ExactArgs reporting through usageError.
func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError(fmt.Sprintf("accepts %d arg(s), received %d", n, len(args)))
		}
		return nil
	}
}

// minArgs is cobra.MinimumNArgs reporting through usageError.
func minArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < n {
			return usageError(fmt.Sprintf("requires at least %d arg(s), received %d", n, len(args)))
		}
		return nil
	}
}
