package ctest

import "fmt"

// Format names a test runner log dialect.
type Format string

const (
	// FormatCTest is the CTest console output format.
	FormatCTest Format = "ctest"
)

// Parser extracts start and finish tokens from test runner log lines.
type Parser interface {
	// ParseLine classifies a log line. Returns false if the line matches
	// neither the start nor the finish grammar.
	ParseLine(line string) (Token, bool)

	// Format returns the log format this parser is for.
	Format() Format
}

// NewParser returns the parser for the given format. An empty format
// selects ctest.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatCTest, "":
		return NewCTestParser(), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}
