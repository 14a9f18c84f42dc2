package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nox-kernel/central/internal/message"
)

func writeFixtureSession(t *testing.T, root, day, stem string, records []Record, meta *Meta) string {
	t.Helper()
	dayDir := filepath.Join(root, day)
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	logPath := filepath.Join(dayDir, stem+".json")
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatalf("marshal records: %v", err)
	}
	if err := os.WriteFile(logPath, data, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if meta != nil {
		metaData, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			t.Fatalf("marshal meta: %v", err)
		}
		if err := os.WriteFile(metaPathFor(logPath), metaData, 0o644); err != nil {
			t.Fatalf("write meta: %v", err)
		}
	}
	return logPath
}

func sampleRecord(turn int, user, assistant string) Record {
	return Record{
		Messages: []message.Message{
			{Role: message.RoleUser, Content: user},
			{Role: message.RoleAssistant, Content: assistant},
		},
		Meta: RecordMeta{Model: "m", Turn: turn, Timestamp: "2026-01-01T00:00:00Z"},
	}
}

func TestComputeTitleFromMessages(t *testing.T) {
	messages := []message.Message{
		{Role: message.RoleSystem, Content: "sys"},
		{Role: message.RoleUser, Content: "[HELPER RESULT] ignored"},
		{Role: message.RoleUser, Content: "one two three four five six seven eight nine ten"},
	}
	title := ComputeTitleFromMessages(messages)
	if title == nil {
		t.Fatal("expected a title")
	}
	if *title != "one two three four five six seven eight" {
		t.Fatalf("expected 8-word trim, got %q", *title)
	}
}

func TestComputeTitleFromMessages_NoUserMessage(t *testing.T) {
	if got := ComputeTitleFromMessages(nil); got != nil {
		t.Fatalf("expected nil title, got %v", *got)
	}
}

func TestFormatDisplayName(t *testing.T) {
	cases := map[string]string{
		"session-20250913-123456":        "Session 2025-09-13 12:34:56 UTC",
		"session-merged-20250913-123456": "Merged session 2025-09-13 12:34:56 UTC",
		"weird-id":                       "Weird Id",
	}
	for stem, want := range cases {
		if got := FormatDisplayName(stem); got != want {
			t.Fatalf("FormatDisplayName(%q) = %q, want %q", stem, got, want)
		}
	}
}

func TestList_DedupesJSONOverJSONLAndSortsByUpdated(t *testing.T) {
	root := t.TempDir()
	title1, title2 := "older", "newer"
	writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")},
		&Meta{ID: "session-20260101-000000", Turns: 1, Title: &title1, Updated: "2026-01-01T00:00:00Z"})
	writeFixtureSession(t, root, "2026-01-02", "session-20260102-000000",
		[]Record{sampleRecord(1, "yo", "hey")},
		&Meta{ID: "session-20260102-000000", Turns: 1, Title: &title2, Updated: "2026-01-02T00:00:00Z"})

	// A stray .jsonl twin of the first stem should be ignored (json wins).
	jsonlPath := filepath.Join(root, "2026-01-01", "session-20260101-000000.jsonl")
	if err := os.WriteFile(jsonlPath, []byte(`{"messages":[],"meta":{}}`), 0o644); err != nil {
		t.Fatalf("write jsonl twin: %v", err)
	}

	metas, err := List(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %+v", len(metas), metas)
	}
	if metas[0].Title == nil || *metas[0].Title != title2 {
		t.Fatalf("expected newest session first, got %+v", metas[0])
	}
}

func TestList_EmptyRoot(t *testing.T) {
	metas, err := List(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("expected no sessions, got %+v", metas)
	}
}

func TestResolve_ByStemSuffix(t *testing.T) {
	root := t.TempDir()
	logPath := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")}, nil)

	resolved, err := Resolve(root, "000000")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != logPath {
		t.Fatalf("expected %q, got %q", logPath, resolved)
	}
}

func TestResolve_ExplicitPath(t *testing.T) {
	root := t.TempDir()
	logPath := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")}, nil)

	resolved, err := Resolve(root, logPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != logPath {
		t.Fatalf("expected %q, got %q", logPath, resolved)
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	if _, err := Resolve(root, "nope"); err == nil {
		t.Fatal("expected error for unresolved identifier")
	}
}

func TestLoadMessages_CarriesFirstSystemOnly(t *testing.T) {
	root := t.TempDir()
	records := []Record{
		{Messages: []message.Message{
			{Role: message.RoleSystem, Content: "sys1"},
			{Role: message.RoleUser, Content: "hi"},
			{Role: message.RoleAssistant, Content: "hello"},
		}, Meta: RecordMeta{Turn: 1}},
		{Messages: []message.Message{
			{Role: message.RoleSystem, Content: "sys2"},
			{Role: message.RoleUser, Content: "again"},
			{Role: message.RoleAssistant, Content: "sure"},
		}, Meta: RecordMeta{Turn: 2}},
	}
	logPath := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000", records, nil)

	messages, err := LoadMessages(logPath)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(messages) != 5 {
		t.Fatalf("expected 5 messages (1 system + 2 pairs), got %d: %+v", len(messages), messages)
	}
	if messages[0].Content != "sys1" {
		t.Fatalf("expected first system message carried, got %q", messages[0].Content)
	}
}

func TestLoadMessages_LegacyJSONL(t *testing.T) {
	root := t.TempDir()
	dayDir := filepath.Join(root, "2026-01-01")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	logPath := filepath.Join(dayDir, "session-20260101-000000.jsonl")
	content := `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}],"meta":{"turn":1}}` + "\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write jsonl: %v", err)
	}

	messages, err := LoadMessages(logPath)
	if err != nil {
		t.Fatalf("load messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
}

func TestMerge_GroupsPairsAndCarriesSystem(t *testing.T) {
	root := t.TempDir()
	pathA := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000", []Record{
		{Messages: []message.Message{
			{Role: message.RoleSystem, Content: "sys"},
			{Role: message.RoleUser, Content: "a1"},
			{Role: message.RoleAssistant, Content: "a2"},
		}, Meta: RecordMeta{Turn: 1}},
	}, nil)
	pathB := writeFixtureSession(t, root, "2026-01-02", "session-20260102-000000", []Record{
		{Messages: []message.Message{
			{Role: message.RoleUser, Content: "b1"},
			{Role: message.RoleAssistant, Content: "b2"},
		}, Meta: RecordMeta{Turn: 1}},
	}, nil)

	mergeRoot := filepath.Join(root, "merged-root")
	outPath, err := Merge([]string{pathA, pathB}, nil, mergeRoot)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	records, err := loadRecords(outPath)
	if err != nil {
		t.Fatalf("load merged records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 merged turns, got %d", len(records))
	}
	if records[0].Messages[0].Role != message.RoleSystem {
		t.Fatalf("expected system message carried into first merged turn, got %+v", records[0].Messages)
	}
	if records[0].Meta.Model != "merged" {
		t.Fatalf("expected model=merged, got %q", records[0].Meta.Model)
	}

	metaRaw, err := os.ReadFile(metaPathFor(outPath))
	if err != nil {
		t.Fatalf("read merged meta: %v", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.Fatalf("unmarshal merged meta: %v", err)
	}
	if meta.Title == nil || len(meta.Sources) != 2 {
		t.Fatalf("expected derived title and 2 sources, got %+v", meta)
	}
}

func TestArchiveEarly_MovesAllButLatestAndDeletesSources(t *testing.T) {
	root := t.TempDir()
	archiveRoot := filepath.Join(t.TempDir(), "early-archives")

	older := "older"
	newer := "newer"
	writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")},
		&Meta{ID: "session-20260101-000000", Turns: 1, Title: &older, Updated: "2026-01-01T00:00:00Z"})
	writeFixtureSession(t, root, "2026-01-02", "session-20260102-000000",
		[]Record{sampleRecord(1, "yo", "hey")},
		&Meta{ID: "session-20260102-000000", Turns: 1, Title: &newer, Updated: "2026-01-02T00:00:00Z"})

	archivePath, err := ArchiveEarly(root, archiveRoot, true)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archivePath == "" {
		t.Fatal("expected a non-empty archive path")
	}

	remaining, err := List(root)
	if err != nil {
		t.Fatalf("list after archive: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Title == nil || *remaining[0].Title != newer {
		t.Fatalf("expected only the newest session to remain, got %+v", remaining)
	}

	if _, err := os.Stat(filepath.Join(root, "2026-01-01")); !os.IsNotExist(err) {
		t.Fatalf("expected empty source date directory removed, stat err=%v", err)
	}
}

func TestArchiveEarly_NoOpWithOneOrFewerSessions(t *testing.T) {
	root := t.TempDir()
	writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")}, nil)

	archivePath, err := ArchiveEarly(root, filepath.Join(t.TempDir(), "archive"), true)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archivePath != "" {
		t.Fatalf("expected no-op, got %q", archivePath)
	}
}

func TestSetTitle_NeverTouchesSessionFile(t *testing.T) {
	root := t.TempDir()
	logPath := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")}, nil)
	before, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	title := "custom title"
	if err := SetTitle(logPath, &title, true); err != nil {
		t.Fatalf("set title: %v", err)
	}

	after, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log after: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("expected SetTitle to leave the session file untouched")
	}

	metaRaw, err := os.ReadFile(metaPathFor(logPath))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if meta.Title == nil || *meta.Title != title || !meta.Custom {
		t.Fatalf("expected custom title to be set, got %+v", meta)
	}
}

func TestSetTitle_ClearsWithNil(t *testing.T) {
	root := t.TempDir()
	title := "will be cleared"
	logPath := writeFixtureSession(t, root, "2026-01-01", "session-20260101-000000",
		[]Record{sampleRecord(1, "hi", "hello")},
		&Meta{ID: "session-20260101-000000", Turns: 1, Title: &title, Custom: true})

	if err := SetTitle(logPath, nil, false); err != nil {
		t.Fatalf("set title: %v", err)
	}

	metaRaw, err := os.ReadFile(metaPathFor(logPath))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if meta.Title != nil {
		t.Fatalf("expected title cleared, got %v", *meta.Title)
	}
}
