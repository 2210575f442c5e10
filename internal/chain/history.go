package chain

import "strings"

// HistoryEntry is one prior message of a conversation, oldest first.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NoHistory is the serialization of an empty history.
const NoHistory = "No previous history."

// HistoryFormatter turns prior messages into the text embedded in the
// synthesizer prompt.
type HistoryFormatter func([]HistoryEntry) string

// FormatHistory writes one "ROLE: content" line per entry. It never
// truncates; bounding the history is the caller's job.
func FormatHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return NoHistory
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, strings.ToUpper(e.Role)+": "+e.Content)
	}
	return strings.Join(lines, "\n")
}
