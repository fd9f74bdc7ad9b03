// Package convert runs a test runner log through the grammar parsers and
// the interval reconstructor.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethpandaops/ctesttrace/pkg/ctest"
	"github.com/ethpandaops/ctesttrace/pkg/trace"
)

// readChunkSize is the read buffer size used between cancellation checks.
const readChunkSize = 32 * 1024

// Options configures a conversion.
type Options struct {
	// Format selects the log grammar. Empty means ctest.
	Format ctest.Format
	// Policy is applied to finish lines without a start.
	Policy trace.OrphanPolicy
	// Tee, when set, receives a verbatim copy of the input.
	Tee io.Writer
}

// Result is the outcome of a conversion.
type Result struct {
	Records []trace.Record
	Stats   trace.Stats
	Lines   int
	Bytes   int64
}

// Marshal serializes the result records.
func (r *Result) Marshal() ([]byte, error) {
	return trace.Marshal(r.Records)
}

// Convert reads the whole of r and reconstructs its test intervals. The
// context is checked between reads.
func Convert(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	parser, err := ctest.NewParser(opts.Format)
	if err != nil {
		return nil, err
	}

	rec := trace.NewReconstructor(trace.WithOrphanPolicy(opts.Policy))
	collector := ctest.NewCollector(parser, rec, opts.Tee)
	w := collector.Writer()

	var total int64

	buf := make([]byte, readChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			total += int64(n)

			if _, err := w.Write(buf[:n]); err != nil {
				return nil, wrapFeedError(err)
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("reading log: %w", readErr)
		}
	}

	if err := w.Close(); err != nil {
		return nil, wrapFeedError(err)
	}

	records, stats := rec.Finish()

	return &Result{
		Records: records,
		Stats:   stats,
		Lines:   collector.Lines(),
		Bytes:   total,
	}, nil
}

// ConvertFile opens path and converts it.
func ConvertFile(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Convert(ctx, f, opts)
}

// wrapFeedError leaves orphan errors unwrapped so callers can report the
// test name verbatim.
func wrapFeedError(err error) error {
	var orphan *trace.OrphanedFinishError
	if errors.As(err, &orphan) {
		return err
	}

	return fmt.Errorf("processing log: %w", err)
}
