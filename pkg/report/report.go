// Package report lays out the visitor summary shown to clients and on the CLI.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"hit-tracker/pkg/models"
)

type Options struct {
	RecentSize int
	TopK       int
	Window     time.Duration
}

// Line is one row of a section. Count is omitted for the recency section.
type Line struct {
	ID       string
	Count    uint64
	HasCount bool
}

type Section struct {
	Title string
	Lines []Line
}

// Sections builds the three report sections from a combined snapshot:
// last distinct visitors, top all-time, and top within the window.
func Sections(snap models.CombinedSnapshot, opts Options) []Section {
	last := Section{Title: fmt.Sprintf("Last %d", opts.RecentSize)}
	for _, id := range snap.LastNDistinctVisitors {
		last.Lines = append(last.Lines, Line{ID: id})
	}

	top := Section{Title: topTitle(opts.TopK), Lines: countLines(snap.AllTimeCounts, opts.TopK)}
	recent := Section{
		Title: fmt.Sprintf("%s in last %s", topTitle(opts.TopK), FormatWindow(opts.Window)),
		Lines: countLines(snap.RecentCountsInWindow, opts.TopK),
	}

	return []Section{last, top, recent}
}

// Render writes sections as plain text, each title underlined with '='.
func Render(w io.Writer, sections []Section) error {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Title)
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("=", len(s.Title)))
		b.WriteByte('\n')
		for _, l := range s.Lines {
			b.WriteString(l.ID)
			if l.HasCount {
				b.WriteString(": ")
				b.WriteString(strconv.FormatUint(l.Count, 10))
			}
			b.WriteByte('\n')
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Text is Sections followed by Render into a string.
func Text(snap models.CombinedSnapshot, opts Options) string {
	var b strings.Builder
	_ = Render(&b, Sections(snap, opts))
	return b.String()
}

// FormatWindow prints whole minutes as "10 min" and anything else as a Go duration.
func FormatWindow(d time.Duration) string {
	if d > 0 && d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int64(d/time.Minute))
	}
	return d.String()
}

func topTitle(k int) string {
	if k <= 0 {
		return "Top"
	}
	return fmt.Sprintf("Top %d", k)
}

func countLines(counts []models.CountEntry, limit int) []Line {
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	lines := make([]Line, 0, len(counts))
	for _, c := range counts {
		lines = append(lines, Line{ID: c.ID, Count: c.Count, HasCount: true})
	}
	return lines
}
