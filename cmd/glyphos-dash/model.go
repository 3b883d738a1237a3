package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

// refreshInterval is how often the glyph list is reloaded.
const refreshInterval = 5 * time.Second

// tickMsg is sent on every refresh interval.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ViewType represents the dashboard views.
type ViewType int

const (
	// ListView shows the glyph table.
	ListView ViewType = iota
	// SearchView shows the search prompt over the table.
	SearchView
	// DetailView shows one glyph and its version history.
	DetailView
)

// Model is the Bubble Tea model for the lexicon dashboard.
type Model struct {
	src   lexiconReader
	gates []string
	style styles

	activeView ViewType
	gateIdx    int // 0 means all gates; i selects gates[i-1]
	search     string

	glyphs []protocol.Glyph
	stats  lexicon.Stats
	err    error

	table  table.Model
	input  textinput.Model
	detail viewport.Model

	selected *protocol.Glyph

	width  int
	height int
}

// newModel returns a Model in ListView reading from src.
func newModel(src lexiconReader, gates []string) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Name", Width: 32},
			{Title: "Gate", Width: 12},
			{Title: "Freq", Width: 6},
			{Title: "Keywords", Width: 36},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	in := textinput.New()
	in.Placeholder = "keywords..."
	in.CharLimit = 120
	in.Width = 40

	return Model{
		src:    src,
		gates:  gates,
		style:  newStyles(),
		table:  t,
		input:  in,
		detail: viewport.New(80, 20),
	}
}

// gate returns the active gate filter, empty for all gates.
func (m Model) gate() string {
	if m.gateIdx == 0 || m.gateIdx > len(m.gates) {
		return ""
	}
	return m.gates[m.gateIdx-1]
}

func (m Model) query() query {
	return query{gate: m.gate(), search: m.search}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(fetchGlyphsCmd(m.src, m.query()), tickCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(max(msg.Width-4, 20))
		m.table.SetHeight(max(msg.Height-6, 3))
		m.detail.Width = max(msg.Width-4, 20)
		m.detail.Height = max(msg.Height-4, 3)

	case glyphsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.glyphs = msg.glyphs
			m.stats = msg.stats
			m.table.SetRows(glyphRows(m.glyphs))
		}

	case versionsMsg:
		if m.selected != nil && m.selected.ID == msg.glyphID {
			versions := msg.versions
			if versions == nil {
				versions = []protocol.GlyphVersion{}
			}
			m.detail.SetContent(m.renderDetail(*m.selected, versions, msg.err))
			m.detail.GotoTop()
		}

	case tickMsg:
		return m, tea.Batch(fetchGlyphsCmd(m.src, m.query()), tickCmd())
	}

	return m, nil
}

// handleKeyPress processes keyboard input for the active view.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.activeView {
	case SearchView:
		return m.handleSearchKeys(msg)
	case DetailView:
		return m.handleDetailKeys(msg)
	default:
		return m.handleListKeys(msg)
	}
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "/":
		m.activeView = SearchView
		m.input.SetValue(m.search)
		return m, m.input.Focus()
	case "g":
		m.gateIdx = (m.gateIdx + 1) % (len(m.gates) + 1)
		m.search = ""
		return m, fetchGlyphsCmd(m.src, m.query())
	case "r":
		return m, fetchGlyphsCmd(m.src, m.query())
	case "esc":
		if m.search == "" {
			return m, nil
		}
		m.search = ""
		return m, fetchGlyphsCmd(m.src, m.query())
	case "enter":
		idx := m.table.Cursor()
		if idx < 0 || idx >= len(m.glyphs) {
			return m, nil
		}
		g := m.glyphs[idx]
		m.selected = &g
		m.activeView = DetailView
		m.detail.SetContent(m.renderDetail(g, nil, nil))
		return m, fetchVersionsCmd(m.src, g.ID)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.activeView = ListView
		m.input.Blur()
		return m, nil
	case "enter":
		m.search = strings.TrimSpace(m.input.Value())
		m.activeView = ListView
		m.input.Blur()
		m.table.SetCursor(0)
		return m, fetchGlyphsCmd(m.src, m.query())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.activeView = ListView
		m.selected = nil
		return m, nil
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.style.heading.Render("glyphos lexicon"))
	b.WriteString("  ")
	b.WriteString(m.renderFilter())
	b.WriteString("\n\n")

	switch m.activeView {
	case DetailView:
		b.WriteString(m.detail.View())
	case SearchView:
		b.WriteString("Search: " + m.input.View() + "\n\n")
		b.WriteString(m.table.View())
	default:
		if len(m.glyphs) == 0 {
			b.WriteString(m.style.faint.Render("No glyphs found."))
		} else {
			b.WriteString(m.table.View())
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

// renderFilter describes what the table currently shows.
func (m Model) renderFilter() string {
	switch {
	case m.search != "":
		return m.style.field.Render(fmt.Sprintf("search: %q", m.search))
	case m.gate() != "":
		return m.style.field.Render("gate: ") + m.style.gate(m.gate()).Render(m.gate())
	default:
		return m.style.faint.Render("all gates")
	}
}

// renderStatusBar shows the store counts, or the last load error.
func (m Model) renderStatusBar() string {
	if m.err != nil {
		return m.style.alert.Render("error: " + m.err.Error())
	}

	dup := m.style.calm
	if m.stats.DuplicateGroups > 0 {
		dup = m.style.caution
	}
	parts := []string{
		fmt.Sprintf("Active: %d", m.stats.Active),
		fmt.Sprintf("Archived: %d", m.stats.Archived),
		dup.Render(fmt.Sprintf("Dup groups: %d", m.stats.DuplicateGroups)),
		fmt.Sprintf("Shown: %d", len(m.glyphs)),
	}
	help := m.style.faint.Render("/ search  g gate  enter detail  r refresh  q quit")
	return strings.Join(parts, " | ") + "  " + help
}

// renderDetail formats a glyph and its history for the detail viewport.
// versions may be nil while the history is still loading.
func (m Model) renderDetail(g protocol.Glyph, versions []protocol.GlyphVersion, err error) string {
	label := m.style.field
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", m.style.heading.Render(g.Label()))
	field := func(name, value string) {
		fmt.Fprintf(&b, "%s %s\n", label.Render(fmt.Sprintf("%-14s", name+":")), value)
	}
	field("ID", protocol.FormatID(g.ID))
	field("Name", g.Name)
	field("Key", g.NormalizedKey)
	field("Gate", m.style.gate(g.Gate).Render(g.Gate))
	field("Frequency", fmt.Sprint(g.Frequency))
	field("Source", g.Source)
	field("Keywords", strings.Join(g.Keywords, ", "))
	field("Updated", g.UpdatedAt.UTC().Format(time.RFC3339))
	if g.HasTemplate() {
		field("Template", *g.ResponseTemplate)
	}
	fmt.Fprintf(&b, "\n%s\n\n", g.Description)

	b.WriteString(m.style.heading.Render("History"))
	b.WriteString("\n")
	switch {
	case err != nil:
		b.WriteString(m.style.alert.Render(err.Error()))
	case versions == nil:
		b.WriteString(m.style.faint.Render("loading..."))
	case len(versions) == 0:
		b.WriteString(m.style.faint.Render("no versions recorded"))
	default:
		for _, v := range versions {
			line := fmt.Sprintf("#%d  %-8s  %s", v.Seq, v.Change, v.CreatedAt.UTC().Format(time.RFC3339))
			if v.RunID != "" {
				line += "  run " + v.RunID
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// glyphRows converts glyphs to table rows.
func glyphRows(glyphs []protocol.Glyph) []table.Row {
	rows := make([]table.Row, 0, len(glyphs))
	for _, g := range glyphs {
		rows = append(rows, table.Row{
			protocol.FormatID(g.ID),
			g.Label(),
			g.Gate,
			fmt.Sprint(g.Frequency),
			strings.Join(g.Keywords, ", "),
		})
	}
	return rows
}
