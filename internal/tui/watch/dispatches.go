package watch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/cinema-bridge/internal/journal"
)

// DispatchLog holds the most recent reported calls, newest first.
type DispatchLog struct {
	limit   int
	entries []journal.Entry
	seen    map[string]bool

	OK     int
	ByKind map[string]int
}

func NewDispatchLog(limit int) *DispatchLog {
	return &DispatchLog{
		limit:  limit,
		seen:   make(map[string]bool),
		ByKind: make(map[string]int),
	}
}

// Add inserts e in time order. Entries already seen, by call ID, are ignored
// so that backfill and the live stream can overlap.
func (l *DispatchLog) Add(e journal.Entry) bool {
	if e.CallID == "" || l.seen[e.CallID] {
		return false
	}
	l.seen[e.CallID] = true

	if e.OK {
		l.OK++
	} else {
		l.ByKind[e.Kind]++
	}

	i := sort.Search(len(l.entries), func(i int) bool {
		return !l.entries[i].CreatedAt.After(e.CreatedAt)
	})
	l.entries = append(l.entries, journal.Entry{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e

	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return true
}

func (l *DispatchLog) Entries() []journal.Entry {
	return l.entries
}

// Failed is the total of failed calls across kinds.
func (l *DispatchLog) Failed() int {
	n := 0
	for _, c := range l.ByKind {
		n += c
	}
	return n
}

func dispatchColumns(width int) []table.Column {
	// Time, Call, Strategy, Args and Result are fixed; Input takes the rest.
	input := width - (8 + 8 + 10 + 22 + 26) - 12
	if input < 16 {
		input = 16
	}
	return []table.Column{
		{Title: "Time", Width: 8},
		{Title: "Call", Width: 8},
		{Title: "Strategy", Width: 10},
		{Title: "Input", Width: input},
		{Title: "Args", Width: 22},
		{Title: "Result", Width: 26},
	}
}

func (l *DispatchLog) Rows(inputWidth int) []table.Row {
	rows := make([]table.Row, 0, len(l.entries))
	for _, e := range l.entries {
		rows = append(rows, table.Row{
			e.CreatedAt.Local().Format("15:04:05"),
			shortID(e.CallID),
			e.Strategy,
			truncateLeft(e.InputPath, inputWidth),
			argsSummary(e),
			resultSummary(e),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateLeft keeps the end of a path, which carries the file name.
func truncateLeft(s string, width int) string {
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return "…" + string(r[len(r)-width+1:])
}

func argsSummary(e journal.Entry) string {
	parts := []string{e.Profile, e.Channels, e.Intensity}
	if strings.Join(parts, "") == "" {
		return "-"
	}
	return strings.Join(parts, "/")
}

func resultSummary(e journal.Entry) string {
	if e.OK {
		return "ok"
	}
	if e.Detail == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}
