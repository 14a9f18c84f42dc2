package session

import (
	"fmt"
	"strings"
)

// FormatTable renders metas as a fixed-width text table for `central session
// ls`, one row per session: id, turns, updated, title.
func FormatTable(metas []Meta) string {
	if len(metas) == 0 {
		return "no sessions found"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-24s  %5s  %-20s  %s\n", "ID", "TURNS", "UPDATED", "TITLE")
	for _, m := range metas {
		title := m.DisplayName
		if m.Title != nil && *m.Title != "" {
			title = *m.Title
		}
		fmt.Fprintf(&b, "%-24s  %5d  %-20s  %s\n", m.ID, m.Turns, m.Updated, title)
	}
	return strings.TrimRight(b.String(), "\n")
}
