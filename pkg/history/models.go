package history

import (
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/trace"
)

// Run is one recorded conversion of a test log.
type Run struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"not null;uniqueIndex"`
	Source     string `gorm:"index"`
	Timestamp  int64  `gorm:"index"`
	Tests      int
	Orphans    int
	Unfinished int
	Lanes      int

	// SpanUs is the virtual time from the first start to the last finish.
	SpanUs int64

	RecordedAt time.Time
}

// TestDuration is one reconstructed interval of a recorded run.
type TestDuration struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"not null;uniqueIndex:idx_td_run_test"`
	TestName   string `gorm:"not null;uniqueIndex:idx_td_run_test;index"`
	StartUs    int64
	DurationUs int64
	Lane       uint32
}

// NewRun builds the run row for a reconstructed log.
func NewRun(runID, source string, ts time.Time, records []trace.Record, stats trace.Stats) *Run {
	var span time.Duration

	for _, r := range records {
		if end := r.End(); end > span {
			span = end
		}
	}

	return &Run{
		RunID:      runID,
		Source:     source,
		Timestamp:  ts.Unix(),
		Tests:      len(records),
		Orphans:    stats.Orphans,
		Unfinished: stats.Unfinished,
		Lanes:      stats.Lanes,
		SpanUs:     span.Microseconds(),
		RecordedAt: ts.UTC(),
	}
}

// FromRecords maps trace records to duration rows for runID. A test name
// that finished more than once keeps its last interval.
func FromRecords(runID string, records []trace.Record) []*TestDuration {
	byName := make(map[string]int, len(records))
	out := make([]*TestDuration, 0, len(records))

	for _, r := range records {
		row := &TestDuration{
			RunID:      runID,
			TestName:   r.Name,
			StartUs:    r.Start.Microseconds(),
			DurationUs: r.Duration.Microseconds(),
			Lane:       r.Lane,
		}

		if i, ok := byName[r.Name]; ok {
			out[i] = row

			continue
		}

		byName[r.Name] = len(out)
		out = append(out, row)
	}

	return out
}
