package report

import (
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/trace"
	"github.com/stretchr/testify/assert"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "zero", duration: 0, expected: "0s"},
		{name: "sub-second", duration: ms(250), expected: "250ms"},
		{name: "seconds", duration: ms(1500), expected: "1.50s"},
		{name: "minutes", duration: 2*time.Minute + ms(3010), expected: "2m 3.01s"},
		{name: "hours", duration: time.Hour + 5*time.Minute, expected: "1h 5m 0.00s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestFormatParallelism(t *testing.T) {
	assert.Equal(t, "-", formatParallelism(ms(100), 0))
	assert.Equal(t, "2.00x", formatParallelism(ms(200), ms(100)))
}

func TestSortByDuration(t *testing.T) {
	records := []trace.Record{
		{Name: "b", Duration: ms(100)},
		{Name: "a", Duration: ms(300)},
		{Name: "c", Duration: ms(100)},
	}

	sorted := SortByDuration(records)

	names := make([]string, 0, len(sorted))
	for _, r := range sorted {
		names = append(names, r.Name)
	}

	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Equal(t, "b", records[0].Name, "input must not be reordered")
}

func TestSpan(t *testing.T) {
	assert.Equal(t, time.Duration(0), Span(nil))
	assert.Equal(t, ms(500), Span([]trace.Record{
		{Start: 0, Duration: ms(500)},
		{Start: ms(100), Duration: ms(200)},
	}))
}

func TestGenerateMarkdown(t *testing.T) {
	records := []trace.Record{
		{Name: "fast", Start: 0, Duration: ms(200), Lane: 0},
		{Name: "slow|pipe", Start: 0, Duration: ms(1500), Lane: 1},
	}
	stats := trace.Stats{Lanes: 2, Orphans: 1}

	md := GenerateMarkdown("LastTest.log", records, stats, 0)

	assert.True(t, strings.HasPrefix(md, "# Test Timeline: LastTest.log\n"))
	assert.Contains(t, md, "| Tests | 2 |")
	assert.Contains(t, md, "| Lanes | 2 |")
	assert.Contains(t, md, "| Span | 1.50s (1 second) |")
	assert.Contains(t, md, "| Summed Test Time | 1.70s |")
	assert.Contains(t, md, "| Dropped Orphans | 1 |")
	assert.NotContains(t, md, "Unfinished")
	assert.Contains(t, md, `| 1 | slow\|pipe | 1.50s | +0s | 1 |`)
	assert.Contains(t, md, "| 2 | fast | 200ms | +0s | 0 |")
}

func TestGenerateMarkdown_Empty(t *testing.T) {
	md := GenerateMarkdown("empty", nil, trace.Stats{}, 0)

	assert.Contains(t, md, "| Tests | 0 |")
	assert.Contains(t, md, "| Parallelism | - |")
	assert.NotContains(t, md, "## Tests")
}

func TestGenerateMarkdown_Truncated(t *testing.T) {
	records := make([]trace.Record, 0, 200)
	for i := 0; i < 200; i++ {
		records = append(records, trace.Record{
			Name:     strings.Repeat("t", 40),
			Duration: ms(i * 10),
		})
	}

	md := GenerateMarkdown("big", records, trace.Stats{Lanes: 1}, 2000)

	assert.LessOrEqual(t, len(md), 2000)
	assert.Contains(t, md, "more test(s) not shown (output truncated at 2000 chars)")
}
