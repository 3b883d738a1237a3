// Package main implements glyphos-dash, a read-only terminal browser for the
// glyph lexicon.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"glyphos/pkg/config"
	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	home, err := resolveHome()
	if err != nil {
		return err
	}
	cfg, err := config.Load(envOr("GLYPHOS_CONFIG", home, protocol.DefaultConfigName))
	if err != nil {
		return err
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = envOr("GLYPHOS_DB", home, protocol.DefaultDBName)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("lexicon not found (run glyphos init): %w", err)
	}

	store, err := lexicon.Open(context.Background(), dbPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // read-only session

	p := tea.NewProgram(newModel(store, cfg.Lexicon.Gates), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
