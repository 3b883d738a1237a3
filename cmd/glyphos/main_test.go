package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

// setupHome points every GLYPHOS_* location at a fresh temp directory.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GLYPHOS_HOME", home)
	for _, k := range []string{"GLYPHOS_DB", "GLYPHOS_CONFIG", "GLYPHOS_BACKUP_DIR", "GLYPHOS_REPORT_DIR", "GLYPHOS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	return home
}

// executeCommand runs the root command with the given args and returns stdout, stderr, and error.
func executeCommand(args ...string) (stdout string, stderr string, err error) {
	return executeWithInput("", args...)
}

func executeWithInput(stdin string, args ...string) (stdout string, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := executeCommand(args...)
	if err != nil {
		t.Fatalf("glyphos %s: %v\nstderr: %s", strings.Join(args, " "), err, stderr)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const candidateFile = `{"source_id": "seed-1", "items": [
  {"name": "Boundary Containment", "description": "A sacred limit holds you.", "gate": "boundary", "keywords": ["boundary", "sacred", "limit"]},
  {"name": "Ache of Recognition", "gate": "recognition", "keywords": ["ache", "recognition", "seen"]},
  {"name": "", "gate": "joy"}
]}`

func TestCLICommands(t *testing.T) {
	setupHome(t)

	t.Run("root --help shows usage", func(t *testing.T) {
		out := mustExecute(t, "--help")
		for _, sub := range []string{"ingest", "import", "prune", "restore", "backup", "stats", "retrieve", "compose", "feedback", "maintain", "rpc"} {
			if !strings.Contains(out, sub) {
				t.Errorf("root help missing %q:\n%s", sub, out)
			}
		}
	})

	t.Run("root --version prints version", func(t *testing.T) {
		out := mustExecute(t, "--version")
		if !strings.HasPrefix(out, "glyphos ") {
			t.Errorf("version output = %q", out)
		}
	})

	t.Run("prune --help shows flags", func(t *testing.T) {
		out := mustExecute(t, "prune", "--help")
		for _, f := range []string{"--dry-run", "--apply", "--gate-caps"} {
			if !strings.Contains(out, f) {
				t.Errorf("prune help missing %s", f)
			}
		}
	})
}

func TestInit(t *testing.T) {
	home := setupHome(t)

	out := mustExecute(t, "init")
	if !strings.Contains(out, "(written)") {
		t.Errorf("first init should write config, got:\n%s", out)
	}
	for _, p := range []string{"config.yaml", "lexicon.db", "backups", "reports", "inbox"} {
		if _, err := os.Stat(filepath.Join(home, p)); err != nil {
			t.Errorf("init did not create %s: %v", p, err)
		}
	}

	out = mustExecute(t, "init")
	if !strings.Contains(out, "(kept)") {
		t.Errorf("second init should keep config, got:\n%s", out)
	}
}

func TestIngestAndQuery(t *testing.T) {
	home := setupHome(t)
	src := writeFile(t, home, "candidates.json", candidateFile)

	out := mustExecute(t, "ingest", "--source", src)
	if !strings.Contains(out, "inserted=2") || !strings.Contains(out, "rejected=1") {
		t.Errorf("first ingest: %s", out)
	}
	out = mustExecute(t, "ingest", "--source", src)
	if !strings.Contains(out, "inserted=0") || !strings.Contains(out, "skipped=2") {
		t.Errorf("rerun must be a no-op: %s", out)
	}

	out = mustExecute(t, "stats")
	if !strings.Contains(out, "active:           2") {
		t.Errorf("stats: %s", out)
	}

	out = mustExecute(t, "list", "--gate", "boundary")
	if !strings.Contains(out, "Boundary Containment") || strings.Contains(out, "Ache of Recognition") {
		t.Errorf("list --gate: %s", out)
	}

	out = mustExecute(t, "search", "sacred")
	if !strings.Contains(out, "Boundary Containment") {
		t.Errorf("search: %s", out)
	}

	out = mustExecute(t, "retrieve", "--json", "I need to set a boundary")
	var resp protocol.RetrieveResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("retrieve json: %v\n%s", err, out)
	}
	if len(resp.Results) == 0 || resp.Results[0].Name != "Boundary Containment" {
		t.Errorf("retrieve: %+v", resp)
	}

	out = mustExecute(t, "history", "1")
	if !strings.Contains(out, "insert") {
		t.Errorf("history: %s", out)
	}
}

func TestEdit(t *testing.T) {
	home := setupHome(t)
	mustExecute(t, "ingest", "--source", writeFile(t, home, "c.json", candidateFile))

	out := mustExecute(t, "edit", "1", "--template", "You are allowed to hold this line.")
	if !strings.Contains(out, "Edited glyph 1") {
		t.Errorf("edit: %s", out)
	}
	out = mustExecute(t, "compose", "-c", "conv", "--glyph", "1", "I need a boundary at work")
	if !strings.Contains(out, "You are allowed to hold this line.") {
		t.Errorf("compose should use the edited template: %s", out)
	}

	_, _, err := executeCommand("edit", "1")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("edit without fields exit = %d, want %d", got, exitBadInput)
	}
	_, _, err = executeCommand("edit", "1", "--gate", "nowhere")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("edit unknown gate exit = %d, want %d", got, exitBadInput)
	}
	_, _, err = executeCommand("edit", "99", "--description", "x")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("edit missing glyph exit = %d, want %d", got, exitBadInput)
	}
}

func TestImportPruneRestore(t *testing.T) {
	home := setupHome(t)

	var rows []string
	for i := range 11 {
		rows = append(rows, fmt.Sprintf(`{"name": "Grief Fragment", "gate": "grief", "source": "legacy-%d"}`, i))
	}
	export := writeFile(t, home, "export.json", "["+strings.Join(rows, ",")+"]")

	out := mustExecute(t, "import", "--file", export)
	if !strings.Contains(out, "Imported 11 glyphs") {
		t.Fatalf("import: %s", out)
	}

	out = mustExecute(t, "prune")
	if !strings.Contains(out, "candidates: 10 in 1 rows") {
		t.Errorf("dry run: %s", out)
	}
	if !strings.Contains(mustExecute(t, "stats"), "active:           11") {
		t.Error("dry run must not archive")
	}

	out = mustExecute(t, "prune", "--apply")
	if !strings.Contains(out, "archived: 10") || !strings.Contains(out, "backup: ") {
		t.Errorf("apply: %s", out)
	}

	out = mustExecute(t, "list", "--archived", "--json")
	var archived []protocol.ArchivedGlyph
	if err := json.Unmarshal([]byte(out), &archived); err != nil {
		t.Fatalf("archived json: %v", err)
	}
	if len(archived) != 10 {
		t.Fatalf("archived = %d, want 10", len(archived))
	}

	mustExecute(t, "restore", "--archived-id", fmt.Sprint(archived[0].ArchivedID))
	_, _, err := executeCommand("restore", "--archived-id", fmt.Sprint(archived[1].ArchivedID))
	var conflict *protocol.DedupConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second restore err = %v, want dedup conflict", err)
	}
	if got := exitCode(err); got != exitPrecondition {
		t.Errorf("exit = %d, want %d", got, exitPrecondition)
	}

	_, _, err = executeCommand("prune", "--dry-run", "--apply")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("conflicting flags exit = %d, want %d", got, exitBadInput)
	}
}

func TestPrune_BackupFailureRefuses(t *testing.T) {
	home := setupHome(t)
	blocker := writeFile(t, home, "blocker", "x")
	t.Setenv("GLYPHOS_BACKUP_DIR", filepath.Join(blocker, "backups"))

	var rows []string
	for range 11 {
		rows = append(rows, `{"name": "Grief Fragment", "gate": "grief"}`)
	}
	mustExecute(t, "import", "--file", writeFile(t, home, "export.json", "["+strings.Join(rows, ",")+"]"))

	out, _, err := executeCommand("prune", "--apply")
	if got := exitCode(err); got != exitPrecondition {
		t.Fatalf("exit = %d (%v), want %d", got, err, exitPrecondition)
	}
	if !strings.Contains(out, "dry-run report: ") {
		t.Errorf("dry-run report should still be written: %s", out)
	}
	if !strings.Contains(mustExecute(t, "stats"), "active:           11") {
		t.Error("store must be untouched when the backup fails")
	}
}

func TestComposeFeedbackExport(t *testing.T) {
	home := setupHome(t)
	mustExecute(t, "ingest", "--source", writeFile(t, home, "c.json", candidateFile))

	out := mustExecute(t, "compose", "-c", "conv-1", "I need to set a boundary at work")
	if !strings.Contains(out, "A sacred limit holds you.") {
		t.Errorf("compose: %s", out)
	}
	out = mustExecute(t, "compose", "-c", "conv-1", "--json", "it keeps happening")
	var cr protocol.ComposeResponse
	if err := json.Unmarshal([]byte(out), &cr); err != nil {
		t.Fatalf("compose json: %v", err)
	}
	if cr.Reply == "" {
		t.Error("compose reply must never be empty")
	}

	mustExecute(t, "feedback", "record", "-c", "conv-1", "--turn", "0", "--rating", "5")
	_, _, err := executeCommand("feedback", "record", "-c", "conv-1", "--rating", "9")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("bad rating exit = %d", got)
	}

	out = mustExecute(t, "feedback", "export")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("export lines = %d:\n%s", len(lines), out)
	}
	var pair struct {
		TurnIndex int    `json:"turn_index"`
		UserInput string `json:"user_input"`
		Match     string `json:"match"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &pair); err != nil {
		t.Fatalf("pair json: %v", err)
	}
	if pair.TurnIndex != 0 || pair.Match != "exact" || pair.UserInput != "I need to set a boundary at work" {
		t.Errorf("pair = %+v", pair)
	}

	out = mustExecute(t, "feedback", "export", "--format", "csv")
	if !strings.HasPrefix(out, "feedback_id,conversation_id,turn_index") {
		t.Errorf("csv export: %s", out)
	}

	out = mustExecute(t, "feedback", "promote")
	if !strings.Contains(out, "source feedback") {
		t.Errorf("promote: %s", out)
	}
}

func TestRPC(t *testing.T) {
	home := setupHome(t)
	mustExecute(t, "ingest", "--source", writeFile(t, home, "c.json", candidateFile))

	in := `{"id":"a","op":"retrieve","params":{"message":"a sacred boundary"}}` + "\n" +
		`{"id":"b","op":"nope","params":{}}` + "\n"
	out, _, err := executeWithInput(in, "rpc")
	if err != nil {
		t.Fatalf("rpc: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("rpc lines = %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], `"ok":true`) || !strings.Contains(lines[1], `"kind":"invalid_input"`) {
		t.Errorf("rpc output:\n%s", out)
	}
}

func TestMaintainOnce(t *testing.T) {
	setupHome(t)
	out := mustExecute(t, "maintain", "--once")
	if !strings.Contains(out, "backup: ") || !strings.Contains(out, "candidates: 0") {
		t.Errorf("maintain --once: %s", out)
	}

	_, _, err := executeCommand("maintain", "--schedule", "whenever")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("bad schedule exit = %d", got)
	}
}

func TestIngest_StoreWriteFailureExits3(t *testing.T) {
	home := setupHome(t)
	mustExecute(t, "init")

	db, err := lexicon.OpenDB(context.Background(), filepath.Join(home, protocol.DefaultDBName))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TRIGGER reject_glyphs BEFORE INSERT ON glyph_lexicon
		BEGIN SELECT RAISE(FAIL, 'database or disk is full'); END`)
	_ = db.Close()
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	src := writeFile(t, home, "candidates.json", candidateFile)
	_, _, err = executeCommand("ingest", "--source", src)
	if err == nil {
		t.Fatal("ingest succeeded against a store rejecting inserts")
	}
	if got := exitCode(err); got != exitStore {
		t.Errorf("exit = %d, want %d (err: %v)", got, exitStore, err)
	}
	if !strings.Contains(err.Error(), "disk is full") {
		t.Errorf("error lost the store cause: %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&protocol.InvalidInputError{Field: "x"}, exitBadInput},
		{fmt.Errorf("wrapped: %w", &protocol.NotFoundError{Kind: "glyph", ID: 1}), exitBadInput},
		{&protocol.StoreUnavailableError{Path: "db"}, exitStore},
		{&protocol.BatchError{Err: &protocol.StoreWriteError{Op: "insert glyph"}}, exitStore},
		{&protocol.BackupFailedError{Path: "b"}, exitPrecondition},
		{&protocol.DedupConflictError{}, exitPrecondition},
		{&os.PathError{Op: "open", Path: "x", Err: os.ErrNotExist}, exitBadInput},
		{errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	_, _, err := executeCommand("list", "--no-such-flag")
	if got := exitCode(err); got != exitBadInput {
		t.Errorf("unknown flag exit = %d, want %d", got, exitBadInput)
	}
}
