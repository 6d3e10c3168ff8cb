package clifmt

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	fallbackWidth  = 80
	minDetailWidth = 24
	// Keys longer than this share of the line are shortened in the middle.
	maxKeyShare = 0.4
)

// RowState selects how a row is coloured and tallied in the title.
type RowState int

const (
	RowActive RowState = iota
	RowMuted
	RowFailed
)

type Row struct {
	Key    string
	Detail string
	State  RowState
}

// Table renders a two column listing for plugins, blacklist entries and
// personas. Details wrap under their own column.
type Table struct {
	Title        string
	KeyHeader    string
	DetailHeader string
	Empty        string
	// MutedLabel names RowMuted rows in the title tally, e.g. "disabled".
	MutedLabel string
	// Width overrides terminal detection when positive.
	Width int

	rows []Row
}

func (t *Table) Add(key, detail string, state RowState) {
	t.rows = append(t.rows, Row{Key: strings.TrimSpace(key), Detail: strings.TrimSpace(detail), State: state})
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render(out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	if title := strings.TrimSpace(t.Title); title != "" {
		fmt.Fprintln(out, Headerf("%s (%s)", title, t.tally()))
	}
	if len(t.rows) == 0 {
		fmt.Fprintln(out, Warn(orDefault(t.Empty, "Nothing to show.")))
		return
	}

	width := lineWidth(out, t.Width)
	keyHeader := orDefault(t.KeyHeader, "NAME")
	keyWidth := utf8.RuneCountInString(keyHeader)
	for _, r := range t.rows {
		keyWidth = max(keyWidth, utf8.RuneCountInString(r.Key))
	}
	keyWidth = min(keyWidth, max(utf8.RuneCountInString(keyHeader), int(float64(width)*maxKeyShare)))
	detailWidth := max(width-keyWidth-2, minDetailWidth)

	fmt.Fprintf(out, "%s  %s\n", Key(padRight(keyHeader, keyWidth)), Key(orDefault(t.DetailHeader, "DETAILS")))
	fmt.Fprintf(out, "%s  %s\n", Dim(strings.Repeat("-", keyWidth)), Dim(strings.Repeat("-", detailWidth)))
	for _, r := range t.rows {
		key := padRight(shorten(r.Key, keyWidth), keyWidth)
		lines := wrap(orDefault(r.Detail, "-"), detailWidth)
		fmt.Fprintf(out, "%s  %s\n", paintState(r.State, key), lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(out, "%s  %s\n", strings.Repeat(" ", keyWidth), line)
		}
	}
}

// tally is the row count, followed by muted and failed counts when present.
func (t *Table) tally() string {
	var muted, failed int
	for _, r := range t.rows {
		switch r.State {
		case RowMuted:
			muted++
		case RowFailed:
			failed++
		}
	}
	parts := []string{fmt.Sprint(len(t.rows))}
	if muted > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", muted, orDefault(t.MutedLabel, "muted")))
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	return strings.Join(parts, ", ")
}

func paintState(state RowState, s string) string {
	switch state {
	case RowMuted:
		return Dim(s)
	case RowFailed:
		return Warn(s)
	default:
		return Success(s)
	}
}

func lineWidth(out io.Writer, override int) int {
	if override > 0 {
		return override
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return fallbackWidth
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func padRight(s string, width int) string {
	if n := width - utf8.RuneCountInString(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// shorten keeps both ends of s, which for plugin file paths are the
// directory root and the file name.
func shorten(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width || width < 5 {
		return s
	}
	head := (width - 1) / 2
	tail := width - 1 - head
	return string(runes[:head]) + "…" + string(runes[len(runes)-tail:])
}

func wrap(text string, width int) []string {
	var lines []string
	var line []rune
	for _, word := range strings.Fields(text) {
		w := []rune(word)
		for len(w) > width {
			if len(line) > 0 {
				lines = append(lines, string(line))
				line = nil
			}
			lines = append(lines, string(w[:width]))
			w = w[width:]
		}
		switch {
		case len(line) == 0:
			line = w
		case len(line)+1+len(w) <= width:
			line = append(append(line, ' '), w...)
		default:
			lines = append(lines, string(line))
			line = w
		}
	}
	if len(line) > 0 || len(lines) == 0 {
		lines = append(lines, string(line))
	}
	return lines
}
