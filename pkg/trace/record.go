// Package trace reconstructs timed test intervals from a classified ctest
// token stream and serializes them in the Trace Event Format understood by
// chrome://tracing and Perfetto.
package trace

import "time"

// Record is one reconstructed interval for a completed test.
type Record struct {
	Name     string
	Start    time.Duration
	Duration time.Duration
	Lane     uint32
}

// End returns the offset at which the test finished.
func (r Record) End() time.Duration {
	return r.Start + r.Duration
}

// Pending is a test that has started but not finished yet.
type Pending struct {
	Start time.Duration
	Lane  uint32
}

// Stats summarizes a reconstruction.
type Stats struct {
	Starts     int `json:"starts"`
	Finishes   int `json:"finishes"`
	Orphans    int `json:"orphans"`
	Unfinished int `json:"unfinished"`
	Ignored    int `json:"ignored"`
	Lanes      int `json:"lanes"`
}
