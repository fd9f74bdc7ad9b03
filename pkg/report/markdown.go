// Package report renders human readable summaries of reconstructed test
// timelines.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
)

// GenerateMarkdown renders a markdown summary of records, slowest test
// first. The output is capped at maxChars characters; zero means no cap.
func GenerateMarkdown(
	title string,
	records []trace.Record,
	stats trace.Stats,
	maxChars int,
) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, title)
	writeOverview(&sb, records, stats)

	// Test table is last, it gets truncated if needed.
	writeSlowestTests(&sb, SortByDuration(records), maxChars)

	return sb.String()
}

// SortByDuration returns a copy of records ordered by duration descending.
// Equal durations are ordered by name, then start.
func SortByDuration(records []trace.Record) []trace.Record {
	out := make([]trace.Record, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Duration != out[j].Duration {
			return out[i].Duration > out[j].Duration
		}

		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		return out[i].Start < out[j].Start
	})

	return out
}

// Span returns the virtual time from zero to the latest record end.
func Span(records []trace.Record) time.Duration {
	var span time.Duration

	for _, r := range records {
		if end := r.End(); end > span {
			span = end
		}
	}

	return span
}

func writeTitle(sb *strings.Builder, title string) {
	fmt.Fprintf(sb, "# Test Timeline: %s\n\n", title)
}

func writeOverview(sb *strings.Builder, records []trace.Record, stats trace.Stats) {
	var total time.Duration
	for _, r := range records {
		total += r.Duration
	}

	span := Span(records)

	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")
	fmt.Fprintf(sb, "| Tests | %d |\n", len(records))
	fmt.Fprintf(sb, "| Lanes | %d |\n", stats.Lanes)

	if span > 0 {
		fmt.Fprintf(sb, "| Span | %s (%s) |\n",
			formatDuration(span), units.HumanDuration(span))
	} else {
		fmt.Fprintf(sb, "| Span | %s |\n", formatDuration(span))
	}

	fmt.Fprintf(sb, "| Summed Test Time | %s |\n", formatDuration(total))
	fmt.Fprintf(sb, "| Parallelism | %s |\n", formatParallelism(total, span))

	if stats.Orphans > 0 {
		fmt.Fprintf(sb, "| Dropped Orphans | %d |\n", stats.Orphans)
	}

	if stats.Unfinished > 0 {
		fmt.Fprintf(sb, "| Unfinished | %d |\n", stats.Unfinished)
	}

	sb.WriteString("\n")
}

func writeSlowestTests(
	sb *strings.Builder,
	sorted []trace.Record,
	maxChars int,
) {
	if len(sorted) == 0 {
		return
	}

	sb.WriteString("## Tests\n\n")
	sb.WriteString("| # | Test | Duration | Start | Lane |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, r := range sorted {
		row := fmt.Sprintf("| %d | %s | %s | %s | %d |\n",
			i+1, escapeCell(r.Name), formatDuration(r.Duration),
			formatOffset(r.Start), r.Lane)

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more test(s) not shown "+
					"(output truncated at %d chars)*\n",
				len(sorted)-i, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

// formatDuration formats a duration at the centisecond resolution of the
// log grammar.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := d.Seconds() - float64(hours*3600+minutes*60)

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %.2fs", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %.2fs", minutes, seconds)
	}

	return fmt.Sprintf("%.2fs", seconds)
}

// formatOffset formats a virtual start time as "+<duration>".
func formatOffset(d time.Duration) string {
	return "+" + formatDuration(d)
}

func formatParallelism(total, span time.Duration) string {
	if span <= 0 {
		return "-"
	}

	return fmt.Sprintf("%.2fx", float64(total)/float64(span))
}

// escapeCell keeps test names from breaking the table.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
