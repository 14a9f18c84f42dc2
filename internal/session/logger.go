package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nox-kernel/central/internal/message"
	"github.com/nox-kernel/central/internal/store"
)

// Logger is the exclusive owner of one open SessionFile and its sidecar. A
// Chat Client holds exactly one Logger for the lifetime of a session.
type Logger struct {
	Model     string
	Sanitized bool
	Root      string

	filePath    string
	metaPath    string
	turn        int
	title       *string
	titleCustom bool
	displayName string
	records     []Record
}

// NewLogger builds a Logger that writes under root once Start is called.
func NewLogger(root, model string, sanitized bool) *Logger {
	return &Logger{Model: model, Sanitized: sanitized, Root: root}
}

// Start creates a new dated SessionFile and an initialised sidecar
// (turns=0). Safe to call once per Logger before the first LogTurn.
func (l *Logger) Start() error {
	now := time.Now().UTC()
	dateDir := filepath.Join(l.Root, now.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	ts := now.Format("20060102-150405")
	l.filePath = filepath.Join(dateDir, fmt.Sprintf("session-%s.json", ts))
	l.metaPath = metaPathFor(l.filePath)
	l.displayName = FormatDisplayName(stemOf(l.filePath))
	l.records = nil

	if existing, err := loadRecords(l.filePath); err == nil && existing != nil {
		l.records = existing
	} else if err := writeJSONFile(l.filePath, []Record{}); err != nil {
		return err
	}
	return l.writeMeta(true)
}

// LoadExisting rebinds the logger to an already-written SessionFile so
// subsequent LogTurn calls continue it, restoring turn count and title.
func (l *Logger) LoadExisting(logPath string) error {
	l.filePath = logPath
	l.metaPath = metaPathFor(logPath)
	l.displayName = FormatDisplayName(stemOf(logPath))

	records, err := loadRecords(logPath)
	if err != nil {
		return err
	}
	l.records = records
	l.turn = len(records)

	if raw, err := store.ReadFile(l.metaPath); err == nil {
		var meta Meta
		if json.Unmarshal([]byte(raw), &meta) == nil {
			l.title = meta.Title
			l.titleCustom = meta.Custom
			if meta.DisplayName != "" {
				l.displayName = meta.DisplayName
			}
		}
	}
	return nil
}

// LogTurn appends a Record built from messages under the current model and
// sanitize flags, rewrites the SessionFile in full, and refreshes the
// sidecar's turns/updated fields.
func (l *Logger) LogTurn(messages []message.Message) error {
	if l.filePath == "" {
		if err := l.Start(); err != nil {
			return err
		}
	}
	l.turn++
	l.records = append(l.records, Record{
		Messages: messages,
		Meta: RecordMeta{
			Model:       l.Model,
			Sanitized:   l.Sanitized,
			Turn:        l.turn,
			Timestamp:   nowISO(),
			FileName:    filepath.Base(l.filePath),
			DisplayName: l.displayName,
		},
	})
	if err := writeJSONFile(l.filePath, l.records); err != nil {
		return err
	}
	return l.writeMeta(false)
}

func (l *Logger) writeMeta(initial bool) error {
	if l.filePath == "" {
		return nil
	}
	if l.metaPath == "" {
		l.metaPath = metaPathFor(l.filePath)
	}

	created := ""
	if !initial {
		if raw, err := store.ReadFile(l.metaPath); err == nil {
			var existing Meta
			if json.Unmarshal([]byte(raw), &existing) == nil {
				created = existing.Created
				if l.title == nil {
					l.title = existing.Title
					l.titleCustom = existing.Custom
				} else if !l.titleCustom && equalTitles(l.title, existing.Title) {
					l.titleCustom = existing.Custom
				}
				if l.displayName == "" {
					l.displayName = existing.DisplayName
				}
			}
		}
	}

	now := nowISO()
	if created == "" {
		created = now
	}
	meta := Meta{
		ID:          stemOf(l.filePath),
		Path:        l.filePath,
		Model:       l.Model,
		Sanitized:   l.Sanitized,
		Turns:       l.turn,
		Created:     created,
		Updated:     now,
		Title:       l.title,
		Custom:      l.titleCustom,
		FileName:    filepath.Base(l.filePath),
		DisplayName: displayNameOr(l.displayName, l.filePath),
	}
	return writeJSONFile(l.metaPath, meta)
}

func equalTitles(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func displayNameOr(name, logPath string) string {
	if name != "" {
		return name
	}
	return FormatDisplayName(stemOf(logPath))
}

// SetTitle overrides the logger's in-memory title and persists it to the
// sidecar immediately.
func (l *Logger) SetTitle(title string, custom bool) error {
	trimmed := title
	if trimmed == "" {
		l.title = nil
	} else {
		l.title = &trimmed
	}
	l.titleCustom = custom
	return l.writeMeta(false)
}

// GetTitle returns the logger's current title, if any.
func (l *Logger) GetTitle() *string { return l.title }

// GetMeta returns the sidecar contents, preferring what's on disk.
func (l *Logger) GetMeta() (Meta, error) {
	if l.metaPath != "" {
		if raw, err := store.ReadFile(l.metaPath); err == nil {
			var meta Meta
			if json.Unmarshal([]byte(raw), &meta) == nil {
				return meta, nil
			}
		}
	}
	return Meta{
		ID:          stemOf(l.filePath),
		Path:        l.filePath,
		Model:       l.Model,
		Sanitized:   l.Sanitized,
		Turns:       l.turn,
		Title:       l.title,
		Custom:      l.titleCustom,
		FileName:    filepath.Base(l.filePath),
		DisplayName: l.displayName,
	}, nil
}

// MetaPath returns the sidecar path, or "" if the logger hasn't started.
func (l *Logger) MetaPath() string { return l.metaPath }

// LogPath returns the SessionFile path, or "" if the logger hasn't started.
func (l *Logger) LogPath() string { return l.filePath }

// MaybeDeleteEmptySession removes the SessionFile, sidecar, and (if now
// empty) parent date directory when the session recorded zero
// user-or-assistant turns. Returns true if it deleted anything.
func (l *Logger) MaybeDeleteEmptySession() (bool, error) {
	if l.filePath == "" {
		return false, nil
	}
	if _, err := os.Stat(l.filePath); err != nil {
		return false, nil
	}

	if l.metaPath != "" {
		if raw, err := store.ReadFile(l.metaPath); err == nil {
			var meta Meta
			if json.Unmarshal([]byte(raw), &meta) == nil && meta.Turns > 0 {
				return false, nil
			}
		}
	}

	records, err := loadRecords(l.filePath)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		for _, msg := range rec.Messages {
			if msg.Role == message.RoleUser || msg.Role == message.RoleAssistant {
				return false, nil
			}
		}
	}

	if err := store.Remove(l.filePath); err != nil {
		return false, err
	}
	if l.metaPath != "" {
		if err := store.Remove(l.metaPath); err != nil {
			return false, err
		}
	}
	_ = store.RemoveEmptyDir(filepath.Dir(l.filePath))
	return true, nil
}

// AppendToDayLog merges the current session's records into
// `<date-dir>/day.json`, replacing any existing entry with the same id.
func (l *Logger) AppendToDayLog() (string, error) {
	if l.filePath == "" {
		return "", nil
	}
	records, err := loadRecords(l.filePath)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	meta, err := l.GetMeta()
	if err != nil {
		return "", err
	}

	dayDir := filepath.Dir(l.filePath)
	dayLogPath := filepath.Join(dayDir, "day.json")

	var dayData []dayLogEntry
	if raw, err := store.ReadFile(dayLogPath); err == nil {
		_ = json.Unmarshal([]byte(raw), &dayData)
	}

	sessionID := stemOf(l.filePath)
	filtered := dayData[:0]
	for _, entry := range dayData {
		if entry.ID != sessionID {
			filtered = append(filtered, entry)
		}
	}
	filtered = append(filtered, dayLogEntry{
		ID:      sessionID,
		Title:   meta.Title,
		Custom:  meta.Custom,
		Path:    l.filePath,
		Records: records,
		Meta:    meta,
	})

	if err := writeJSONFile(dayLogPath, filtered); err != nil {
		return "", err
	}
	return dayLogPath, nil
}

// dayLogEntry is one per-session entry inside a day.json DayLog.
type dayLogEntry struct {
	ID      string   `json:"id"`
	Title   *string  `json:"title"`
	Custom  bool     `json:"custom"`
	Path    string   `json:"path"`
	Records []Record `json:"records"`
	Meta    Meta     `json:"meta"`
}
