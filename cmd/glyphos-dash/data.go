package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// fetchTimeout bounds every dashboard query.
const fetchTimeout = 5 * time.Second

// listLimit caps the glyph table.
const listLimit = 500

// lexiconReader is the read-only slice of the store the dashboard uses.
type lexiconReader interface {
	List(ctx context.Context, opts lexicon.ListOpts) ([]protocol.Glyph, error)
	Search(ctx context.Context, keywordsAny []string, limit int) ([]protocol.Glyph, error)
	Versions(ctx context.Context, glyphID int64) ([]protocol.GlyphVersion, error)
	Stats(ctx context.Context) (lexicon.Stats, error)
}

// glyphsMsg carries a refreshed glyph list and store counts.
type glyphsMsg struct {
	glyphs []protocol.Glyph
	stats  lexicon.Stats
	err    error
}

// versionsMsg carries the version history of one glyph.
type versionsMsg struct {
	glyphID  int64
	versions []protocol.GlyphVersion
	err      error
}

// query selects what the glyph table shows. A non-empty search wins over the
// gate filter.
type query struct {
	gate   string
	search string
}

// fetchGlyphsCmd loads the glyphs matching q together with the store stats.
func fetchGlyphsCmd(src lexiconReader, q query) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		var (
			glyphs []protocol.Glyph
			err    error
		)
		if q.search != "" {
			glyphs, err = src.Search(ctx, textnorm.Tokenize(q.search), listLimit)
		} else {
			glyphs, err = src.List(ctx, lexicon.ListOpts{Gate: q.gate, Limit: listLimit})
		}
		if err != nil {
			return glyphsMsg{err: fmt.Errorf("load glyphs: %w", err)}
		}
		stats, err := src.Stats(ctx)
		if err != nil {
			return glyphsMsg{err: fmt.Errorf("load stats: %w", err)}
		}
		return glyphsMsg{glyphs: glyphs, stats: stats}
	}
}

// fetchVersionsCmd loads the version history of glyphID.
func fetchVersionsCmd(src lexiconReader, glyphID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		versions, err := src.Versions(ctx, glyphID)
		if err != nil {
			err = fmt.Errorf("load history: %w", err)
		}
		return versionsMsg{glyphID: glyphID, versions: versions, err: err}
	}
}

// resolveHome returns GLYPHOS_HOME or ~/.glyphos.
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

// envOr returns the value of key, or base/name when unset.
func envOr(key, base, name string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return filepath.Join(base, name)
}
