// Package session persists conversations as per-day JSON session files with
// a metadata sidecar, supporting listing, resolution, merging, and archival
// of past conversations. It holds no in-memory state: every operation reads
// and writes the filesystem directly.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nox-kernel/central/internal/message"
	"github.com/nox-kernel/central/internal/store"
)

// Record is one logged turn as persisted inside a SessionFile.
type Record struct {
	Messages []message.Message `json:"messages"`
	Meta     RecordMeta         `json:"meta"`
}

// RecordMeta describes the turn that produced a Record.
type RecordMeta struct {
	Model       string `json:"model"`
	Sanitized   bool   `json:"sanitized"`
	Turn        int    `json:"turn"`
	Timestamp   string `json:"ts"`
	FileName    string `json:"file_name"`
	DisplayName string `json:"display_name"`
}

// ArchiveInfo records provenance when a SessionMeta describes an archived merge.
type ArchiveInfo struct {
	Type                      string `json:"type"`
	LatestExcludedID          string `json:"latest_excluded_id"`
	LatestExcludedDisplayName string `json:"latest_excluded_display_name"`
	SourceCount               int    `json:"source_count"`
	Generated                 string `json:"generated"`
}

// Meta is the `<stem>.meta.json` sidecar for a SessionFile.
type Meta struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	Model       string       `json:"model,omitempty"`
	Sanitized   bool         `json:"sanitized,omitempty"`
	Turns       int          `json:"turns"`
	Created     string       `json:"created,omitempty"`
	Updated     string       `json:"updated,omitempty"`
	Title       *string      `json:"title"`
	Custom      bool         `json:"custom"`
	FileName    string       `json:"file_name"`
	DisplayName string       `json:"display_name"`
	Sources     []string     `json:"sources,omitempty"`
	Archive     *ArchiveInfo `json:"archive,omitempty"`
}

var resultEchoPrefixes = []string{"[HELPER RESULT]", "[INSTRUMENT RESULT]"}

// FormatDisplayName renders a human label for a session file stem, matching
// the "session-<ts>" / "session-merged-<ts>" naming convention.
func FormatDisplayName(stem string) string {
	type prefixLabel struct {
		prefix string
		label  string
	}
	prefixes := []prefixLabel{
		{"session-merged-", "Merged session"},
		{"session-early-archive-", "Early archive"},
		{"session-", "Session"},
	}
	for _, pl := range prefixes {
		if strings.HasPrefix(stem, pl.prefix) {
			suffix := strings.TrimPrefix(stem, pl.prefix)
			ts, err := time.Parse("20060102-150405", suffix)
			if err != nil {
				break
			}
			return fmt.Sprintf("%s %s UTC", pl.label, ts.Format("2006-01-02 15:04:05"))
		}
	}
	pretty := strings.TrimSpace(strings.ReplaceAll(stem, "-", " "))
	if pretty == "" {
		return "Session"
	}
	return strings.Title(pretty)
}

// ComputeTitleFromMessages derives a short title from the first user message
// that is not a helper/instrument result echo (a "[HELPER RESULT]" or
// "[INSTRUMENT RESULT]" prefix, case-insensitive), trimmed to 8 words / 80
// characters.
func ComputeTitleFromMessages(messages []message.Message) *string {
	var firstUser string
	found := false
	for _, msg := range messages {
		if msg.Role != message.RoleUser {
			continue
		}
		upper := strings.ToUpper(strings.TrimSpace(msg.Content))
		isEcho := false
		for _, prefix := range resultEchoPrefixes {
			isEcho = isEcho || strings.HasPrefix(upper, prefix)
		}
		if isEcho {
			continue
		}
		firstUser = msg.Content
		found = true
		break
	}
	if !found {
		return nil
	}
	normalized := strings.Join(strings.Fields(strings.ReplaceAll(firstUser, "\n", " ")), " ")
	if normalized == "" {
		return nil
	}
	words := strings.Fields(normalized)
	if len(words) > 8 {
		words = words[:8]
	}
	short := strings.Join(words, " ")
	if len(short) > 80 {
		short = short[:80]
	}
	return &short
}

func metaPathFor(logPath string) string {
	ext := filepath.Ext(logPath)
	stem := strings.TrimSuffix(logPath, ext)
	return stem + ".meta.json"
}

// List scans root's date subdirectories (reverse lexicographic, i.e. newest
// first) for session files, deduplicating `.json`/`.jsonl` pairs by stem
// (json wins), and returns their metadata sorted by Updated descending.
func List(root string) ([]Meta, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session root: %w", err)
	}

	dayDirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			dayDirs = append(dayDirs, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dayDirs)))

	var metas []Meta
	for _, day := range dayDirs {
		files, err := sessionFilesForDay(filepath.Join(root, day))
		if err != nil {
			return nil, err
		}
		for _, logPath := range files {
			metaPath := metaPathFor(logPath)
			if _, statErr := os.Stat(metaPath); statErr == nil {
				metas = append(metas, readInfoWithMeta(logPath, metaPath))
			} else {
				metas = append(metas, fallbackInfo(logPath))
			}
		}
	}

	sort.SliceStable(metas, func(i, j int) bool {
		return infoSortKey(metas[i]) > infoSortKey(metas[j])
	})
	return metas, nil
}

// sessionFilesForDay enumerates session-*.json then session-*.jsonl in a day
// directory, deduplicating by stem with json taking precedence.
func sessionFilesForDay(dayDir string) ([]string, error) {
	entries, err := os.ReadDir(dayDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read day directory: %w", err)
	}

	byStem := map[string]string{}
	var order []string
	consider := func(suffix string) {
		names := make([]string, 0)
		for _, e := range entries {
			name := e.Name()
			if strings.HasSuffix(name, ".meta.json") {
				continue
			}
			if strings.HasPrefix(name, "session-") && strings.HasSuffix(name, suffix) {
				names = append(names, name)
			}
		}
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
		for _, name := range names {
			stem := strings.TrimSuffix(name, suffix)
			if _, exists := byStem[stem]; !exists {
				byStem[stem] = filepath.Join(dayDir, name)
				order = append(order, stem)
			}
		}
	}
	consider(".json")
	consider(".jsonl")

	out := make([]string, 0, len(order))
	for _, stem := range order {
		out = append(out, byStem[stem])
	}
	return out, nil
}

func readInfoWithMeta(logPath, metaPath string) Meta {
	var meta Meta
	if raw, err := store.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	if meta.ID == "" {
		meta.ID = stemOf(logPath)
	}
	if meta.Path == "" {
		meta.Path = logPath
	}
	if meta.Turns == 0 {
		meta.Turns = countRecords(logPath)
	}
	if meta.FileName == "" {
		meta.FileName = filepath.Base(logPath)
	}
	if meta.DisplayName == "" {
		meta.DisplayName = FormatDisplayName(stemOf(logPath))
	}
	return meta
}

func fallbackInfo(logPath string) Meta {
	records := loadRecordsBestEffort(logPath)
	var title *string
	if len(records) > 0 {
		title = ComputeTitleFromMessages(records[0].Messages)
	}
	return Meta{
		ID:          stemOf(logPath),
		Path:        logPath,
		Turns:       len(records),
		Title:       title,
		Custom:      false,
		FileName:    filepath.Base(logPath),
		DisplayName: FormatDisplayName(stemOf(logPath)),
	}
}

func infoSortKey(meta Meta) int64 {
	if meta.Updated != "" {
		if ts, err := time.Parse(time.RFC3339, meta.Updated); err == nil {
			return ts.Unix()
		}
	}
	if info, err := os.Stat(meta.Path); err == nil {
		return info.ModTime().Unix()
	}
	return 0
}

func countRecords(logPath string) int {
	return len(loadRecordsBestEffort(logPath))
}

func stemOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// Resolve finds a session log by exact filesystem path or by stem (or
// stem suffix) under root's day directories.
func Resolve(root, identifier string) (string, error) {
	if info, err := os.Stat(identifier); err == nil && !info.IsDir() {
		return identifier, nil
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return "", os.ErrNotExist
	}
	if err != nil {
		return "", fmt.Errorf("read session root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := sessionFilesForDay(filepath.Join(root, e.Name()))
		if err != nil {
			return "", err
		}
		for _, logPath := range files {
			stem := stemOf(logPath)
			if stem == identifier || strings.HasSuffix(stem, identifier) {
				return logPath, nil
			}
		}
	}
	return "", os.ErrNotExist
}

// LoadMessages reconstructs the full ordered message list from a session
// log: the first system message encountered, plus every user/assistant
// message across every record in file order.
func LoadMessages(logPath string) ([]message.Message, error) {
	records, err := loadRecords(logPath)
	if err != nil {
		return nil, err
	}
	return messagesFromRecords(records), nil
}

func messagesFromRecords(records []Record) []message.Message {
	var out []message.Message
	systemSet := false
	for _, rec := range records {
		if !systemSet {
			for _, msg := range rec.Messages {
				if msg.Role == message.RoleSystem {
					out = append(out, msg)
					systemSet = true
					break
				}
			}
		}
		for _, msg := range rec.Messages {
			if msg.Role == message.RoleUser || msg.Role == message.RoleAssistant {
				out = append(out, msg)
			}
		}
	}
	return out
}

func loadRecords(logPath string) ([]Record, error) {
	raw, err := store.ReadFile(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if strings.HasSuffix(logPath, ".jsonl") {
		return parseJSONLRecords(raw), nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, nil
	}
	return records, nil
}

func loadRecordsBestEffort(logPath string) []Record {
	records, err := loadRecords(logPath)
	if err != nil {
		return nil
	}
	return records
}

func parseJSONLRecords(raw string) []Record {
	var records []Record
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records
}

func groupPairs(messages []message.Message) [][2]message.Message {
	var pairs [][2]message.Message
	var pendingUser *message.Message
	for i := range messages {
		msg := messages[i]
		switch msg.Role {
		case message.RoleSystem:
			continue
		case message.RoleUser:
			pendingUser = &messages[i]
		case message.RoleAssistant:
			if pendingUser != nil {
				pairs = append(pairs, [2]message.Message{*pendingUser, msg})
				pendingUser = nil
			}
		}
	}
	return pairs
}

// Merge concatenates the conversations at paths in order, carrying the first
// system message seen, groups the remainder into (user, assistant) pairs,
// and writes a new SessionFile + sidecar under root.
func Merge(paths []string, title *string, root string) (string, error) {
	var combined []message.Message
	systemSet := false
	sourceIDs := make([]string, 0, len(paths))

	for _, path := range paths {
		sourceIDs = append(sourceIDs, stemOf(path))
		msgs, err := LoadMessages(path)
		if err != nil {
			return "", err
		}
		if len(msgs) == 0 {
			continue
		}
		if !systemSet {
			for _, msg := range msgs {
				if msg.Role == message.RoleSystem {
					combined = append(combined, msg)
					systemSet = true
					break
				}
			}
		}
		for _, msg := range msgs {
			if msg.Role == message.RoleUser || msg.Role == message.RoleAssistant {
				combined = append(combined, msg)
			}
		}
	}

	now := time.Now().UTC()
	dateDir := filepath.Join(root, "merged-"+now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("create merge directory: %w", err)
	}
	ts := now.Format("20060102-150405")
	outLog := filepath.Join(dateDir, fmt.Sprintf("session-merged-%s.json", ts))
	outStem := stemOf(outLog)
	displayName := FormatDisplayName(outStem)

	var systemMsg *message.Message
	for i := range combined {
		if combined[i].Role == message.RoleSystem {
			systemMsg = &combined[i]
			break
		}
	}
	pairs := groupPairs(combined)

	records := make([]Record, 0, len(pairs))
	for i, pair := range pairs {
		turn := i + 1
		var msgs []message.Message
		if systemMsg != nil {
			msgs = append(msgs, *systemMsg)
		}
		msgs = append(msgs, pair[0], pair[1])
		records = append(records, Record{
			Messages: msgs,
			Meta: RecordMeta{
				Model:       "merged",
				Sanitized:   false,
				Turn:        turn,
				Timestamp:   nowISO(),
				FileName:    filepath.Base(outLog),
				DisplayName: displayName,
			},
		})
	}

	if err := writeJSONFile(outLog, records); err != nil {
		return "", err
	}

	resolvedTitle := title
	if resolvedTitle == nil {
		resolvedTitle = deriveMergeTitle(paths)
	}

	nowStr := nowISO()
	meta := Meta{
		ID:          outStem,
		Path:        outLog,
		Model:       "merged",
		Sanitized:   false,
		Turns:       len(records),
		Created:     nowStr,
		Updated:     nowStr,
		Title:       resolvedTitle,
		Custom:      false,
		Sources:     sourceIDs,
		FileName:    filepath.Base(outLog),
		DisplayName: displayName,
	}
	if err := writeJSONFile(metaPathFor(outLog), meta); err != nil {
		return "", err
	}
	return outLog, nil
}

func deriveMergeTitle(paths []string) *string {
	parts := make([]string, 0, len(paths))
	for i, path := range paths {
		if i >= 3 {
			break
		}
		parts = append(parts, partTitle(path))
	}
	joined := strings.Join(parts, " | ")
	title := "Merged: " + joined
	return &title
}

func partTitle(path string) string {
	metaPath := metaPathFor(path)
	if raw, err := store.ReadFile(metaPath); err == nil {
		var meta Meta
		if json.Unmarshal([]byte(raw), &meta) == nil && meta.Title != nil && *meta.Title != "" {
			return *meta.Title
		}
	}
	return stemOf(path)
}

// ArchiveEarly merges every session except the most recent under archiveRoot
// and, if deleteSources is true, removes the source files and their
// now-empty parent date directories. Returns "", nil if there is nothing
// to archive (zero or one sessions).
func ArchiveEarly(root, archiveRoot string, deleteSources bool) (string, error) {
	infos, err := List(root)
	if err != nil {
		return "", err
	}
	if len(infos) <= 1 {
		return "", nil
	}

	latest := infos[0]
	var paths []string
	for _, info := range infos[1:] {
		if info.Path == "" {
			continue
		}
		if _, statErr := os.Stat(info.Path); statErr == nil {
			paths = append(paths, info.Path)
		}
	}
	if len(paths) == 0 {
		return "", nil
	}

	latestDisplay := latest.DisplayName
	if latestDisplay == "" {
		latestDisplay = FormatDisplayName(latest.ID)
	}
	title := fmt.Sprintf("Early archive (before %s)", latestDisplay)
	mergedPath, err := Merge(paths, &title, archiveRoot)
	if err != nil {
		return "", err
	}

	ts := time.Now().UTC().Format("20060102-150405")
	archiveStem := "session-early-archive-" + ts
	archiveLog := filepath.Join(filepath.Dir(mergedPath), archiveStem+".json")
	if err := os.Rename(mergedPath, archiveLog); err != nil {
		return "", fmt.Errorf("rename archive log: %w", err)
	}
	mergedMetaPath := metaPathFor(mergedPath)
	archiveMetaPath := metaPathFor(archiveLog)
	if _, statErr := os.Stat(mergedMetaPath); statErr == nil {
		if err := os.Rename(mergedMetaPath, archiveMetaPath); err != nil {
			return "", fmt.Errorf("rename archive meta: %w", err)
		}
	}

	var meta Meta
	if raw, err := store.ReadFile(archiveMetaPath); err == nil {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	meta.ID = archiveStem
	meta.Path = archiveLog
	meta.FileName = filepath.Base(archiveLog)
	meta.DisplayName = FormatDisplayName(archiveStem)
	sources := make([]string, 0, len(paths))
	for _, p := range paths {
		sources = append(sources, stemOf(p))
	}
	meta.Sources = sources
	meta.Archive = &ArchiveInfo{
		Type:                      "early",
		LatestExcludedID:          latest.ID,
		LatestExcludedDisplayName: latestDisplay,
		SourceCount:               len(paths),
		Generated:                 nowISO(),
	}
	if err := writeJSONFile(archiveMetaPath, meta); err != nil {
		return "", err
	}

	if deleteSources {
		deleteSourceSessions(paths, root, archiveRoot)
	}
	return archiveLog, nil
}

func deleteSourceSessions(paths []string, root, archiveRoot string) {
	for _, path := range paths {
		_ = store.Remove(path)
		_ = store.Remove(metaPathFor(path))
		dir := filepath.Dir(path)
		if dir != root && dir != archiveRoot {
			_ = store.RemoveEmptyDir(dir)
		}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = store.RemoveEmptyDir(filepath.Join(root, e.Name()))
		}
	}
}

// SetTitle loads or synthesises the sidecar for logPath, sets its title
// (trimmed, may be nil to clear) and custom flag, and rewrites it.
func SetTitle(logPath string, title *string, custom bool) error {
	metaPath := metaPathFor(logPath)
	var meta Meta
	if raw, err := store.ReadFile(metaPath); err == nil {
		if json.Unmarshal([]byte(raw), &meta) != nil {
			meta = minimalMeta(logPath)
		}
	} else {
		meta = minimalMeta(logPath)
	}

	if title != nil {
		trimmed := strings.TrimSpace(*title)
		meta.Title = &trimmed
	} else {
		meta.Title = nil
	}
	meta.Custom = custom
	meta.Updated = nowISO()
	if meta.FileName == "" {
		meta.FileName = filepath.Base(logPath)
	}
	if meta.DisplayName == "" {
		meta.DisplayName = FormatDisplayName(stemOf(logPath))
	}
	return writeJSONFile(metaPath, meta)
}

func minimalMeta(logPath string) Meta {
	return Meta{
		ID:          stemOf(logPath),
		Path:        logPath,
		Turns:       countRecords(logPath),
		FileName:    filepath.Base(logPath),
		DisplayName: FormatDisplayName(stemOf(logPath)),
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := store.WriteFile(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func nowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
