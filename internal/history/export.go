package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatText     ExportFormat = "text"
	FormatMarkdown ExportFormat = "md"
	FormatSRT      ExportFormat = "srt"
)

// minCueLength is the display time given to turns recorded from a single
// caption update.
const minCueLength = 2 * time.Second

func ParseFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text", "txt":
		return FormatText, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "srt":
		return FormatSRT, nil
	default:
		return "", NewError(ErrValidation, "unsupported export format").WithContext("format", s)
	}
}

// ExportHistory renders the finalized history. JSON is an indented array of
// entries; text is one block per entry:
//
//	[15:04:05] Speaker:
//	original
//	→ translated
func (m *Manager) ExportHistory(format ExportFormat) (string, error) {
	m.mu.Lock()
	entries := m.historySnapshotLocked()
	loc := m.location
	now := m.now()
	m.mu.Unlock()

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", WrapError(err, ErrEncode, "encode history export")
		}
		return string(data), nil
	case FormatText:
		return formatText(entries, loc), nil
	case FormatMarkdown:
		return formatMarkdown(entries, now, loc), nil
	case FormatSRT:
		return formatSRT(entries), nil
	default:
		return "", NewError(ErrValidation, "unsupported export format").WithContext("format", string(format))
	}
}

func formatText(entries []Entry, loc *time.Location) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s:\n", e.StartedAt().In(loc).Format("15:04:05"), e.Speaker)
		b.WriteString(e.Original)
		b.WriteString("\n→ ")
		b.WriteString(e.Translated)
		b.WriteString("\n")
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

func formatMarkdown(entries []Entry, exportedAt time.Time, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("# Meeting history\n\n")
	fmt.Fprintf(&b, "*Exported: %s*\n", exportedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "*Entries: %d*\n\n---\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "**[%s] %s:**\n", e.StartedAt().In(loc).Format("15:04"), e.Speaker)
		b.WriteString(strings.TrimSpace(e.Original))
		b.WriteString("\n\n")
	}
	return b.String()
}

// formatSRT renders one subtitle cue per entry, timed relative to the first
// entry. The translation goes on a second line when it differs.
func formatSRT(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	base := entries[0].StartedAt()

	var b strings.Builder
	for i, e := range entries {
		start := e.StartedAt().Sub(base)
		end := start + max(e.Length(), minCueLength)
		fmt.Fprintf(&b, "%d\n%s --> %s\n", i+1, srtTimestamp(start), srtTimestamp(end))

		original := strings.TrimSpace(e.Original)
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, original)
		if translated := strings.TrimSpace(e.Translated); translated != "" && translated != original {
			b.WriteString(translated)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
