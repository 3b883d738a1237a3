package main

import (
	"fmt"
	"os"
	"path/filepath"

	"glyphos/pkg/config"
	"glyphos/pkg/protocol"
)

// Paths holds the resolved glyphos state file paths.
type Paths struct {
	Home       string // ~/.glyphos or GLYPHOS_HOME
	DBPath     string // lexicon.db or GLYPHOS_DB
	ConfigPath string // config.yaml or GLYPHOS_CONFIG
	BackupDir  string // backups/ under Home
	ReportDir  string // reports/ under Home
	InboxDir   string // inbox/ under Home, the default watch directory
}

// ResolvePaths returns all glyphos paths, respecting env var overrides.
// Environment variables:
//   - GLYPHOS_HOME: base directory for all state (default: ~/.glyphos)
//   - GLYPHOS_DB: lexicon database (default: $GLYPHOS_HOME/lexicon.db)
//   - GLYPHOS_CONFIG: configuration file (default: $GLYPHOS_HOME/config.yaml)
func ResolvePaths() (*Paths, error) {
	home, err := resolveHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		Home:       home,
		DBPath:     resolvePathWithEnv("GLYPHOS_DB", home, protocol.DefaultDBName),
		ConfigPath: resolvePathWithEnv("GLYPHOS_CONFIG", home, protocol.DefaultConfigName),
		BackupDir:  filepath.Join(home, protocol.BackupsDir),
		ReportDir:  filepath.Join(home, protocol.ReportsDir),
		InboxDir:   filepath.Join(home, "inbox"),
	}, nil
}

// applyDefaults fills the config's unset locations from p. Explicit config
// values and their env overrides win.
func (p *Paths) applyDefaults(cfg *config.Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = p.DBPath
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = p.BackupDir
	}
	if cfg.Store.ReportDir == "" {
		cfg.Store.ReportDir = p.ReportDir
	}
}

func resolveHome() (string, error) {
	if v := os.Getenv("GLYPHOS_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.HomeDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
