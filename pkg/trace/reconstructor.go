package trace

import (
	"time"

	"github.com/ethpandaops/ctesttrace/pkg/ctest"
)

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithOrphanPolicy sets how finish-without-start lines are handled.
func WithOrphanPolicy(p OrphanPolicy) Option {
	return func(r *Reconstructor) {
		r.policy = p
	}
}

// Reconstructor folds a token stream, in log order, into trace records.
// Lanes are synthesized: a start takes the oldest released lane, or a new
// one if none is free. It is not safe for concurrent use; independent
// logs get independent reconstructors.
type Reconstructor struct {
	policy OrphanPolicy

	pending  map[string]Pending
	free     []uint32
	nextLane uint32
	clock    time.Duration
	records  []Record
	stats    Stats
}

// Ensure interface compliance.
var _ ctest.Sink = (*Reconstructor)(nil)

// NewReconstructor creates an empty reconstructor. The default policy is
// OrphanFail.
func NewReconstructor(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		pending: make(map[string]Pending, 16),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Feed applies one token.
func (r *Reconstructor) Feed(tok ctest.Token) error {
	switch tok.Kind {
	case ctest.TokenStart:
		r.start(tok.Name)
	case ctest.TokenFinish:
		return r.finish(tok.Name, tok.Duration)
	default:
		r.stats.Ignored++
	}

	return nil
}

// FeedLine classifies a raw log line and applies it.
func (r *Reconstructor) FeedLine(line string) error {
	return r.Feed(ctest.Classify(line))
}

func (r *Reconstructor) start(name string) {
	r.stats.Starts++

	// A repeated start overwrites the earlier entry. The earlier lane is
	// never released.
	r.pending[name] = Pending{Start: r.clock, Lane: r.acquireLane()}
}

func (r *Reconstructor) finish(name string, d time.Duration) error {
	p, ok := r.pending[name]
	if !ok {
		if r.policy == OrphanFail {
			return &OrphanedFinishError{Name: name}
		}

		r.stats.Orphans++

		return nil
	}

	delete(r.pending, name)

	rec := Record{
		Name:     name,
		Start:    p.Start,
		Duration: d,
		Lane:     p.Lane,
	}
	r.records = append(r.records, rec)
	r.stats.Finishes++

	if end := rec.End(); end > r.clock {
		r.clock = end
	}

	r.free = append(r.free, p.Lane)

	return nil
}

// acquireLane pops the oldest free lane or allocates a new one.
func (r *Reconstructor) acquireLane() uint32 {
	if len(r.free) > 0 {
		lane := r.free[0]
		r.free = r.free[1:]

		return lane
	}

	lane := r.nextLane
	r.nextLane++

	return lane
}

// Records returns a copy of the records produced so far, in finish order.
func (r *Reconstructor) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)

	return out
}

// Pending returns a copy of the started-but-unfinished tests.
func (r *Reconstructor) Pending() map[string]Pending {
	out := make(map[string]Pending, len(r.pending))
	for k, v := range r.pending {
		out[k] = v
	}

	return out
}

// FreeLanes returns the released lanes in reuse order.
func (r *Reconstructor) FreeLanes() []uint32 {
	out := make([]uint32, len(r.free))
	copy(out, r.free)

	return out
}

// Clock returns the current virtual clock.
func (r *Reconstructor) Clock() time.Duration {
	return r.clock
}

// Stats returns counters for the tokens seen so far.
func (r *Reconstructor) Stats() Stats {
	s := r.stats
	s.Unfinished = len(r.pending)
	s.Lanes = int(r.nextLane)

	return s
}

// Finish ends the input. Tests still pending are dropped and counted as
// unfinished.
func (r *Reconstructor) Finish() ([]Record, Stats) {
	stats := r.Stats()

	r.pending = make(map[string]Pending, 16)

	return r.Records(), stats
}
