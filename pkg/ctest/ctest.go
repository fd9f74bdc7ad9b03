package ctest

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// startPattern matches ctest start lines.
// Example: "      Start  1: test_one"
var startPattern = regexp.MustCompile(`^\s*Start\s+\d+:\s+(\S+)`)

// finishPattern matches ctest result lines. Everything up to the first
// colon is the "K/M Test #N" prefix. The marker text between the name and
// the timing is not interpreted.
// Example: "1/2 Test #1: test_one .........   Passed    0.20 sec"
var finishPattern = regexp.MustCompile(
	`^[^:]*:\s+(\S+)\s+(?:\D.*?)?(\d+)\.(\d{2})\s+sec\b`,
)

// maxWholeSeconds bounds the seconds field so the duration fits in int64.
const maxWholeSeconds = math.MaxInt64/int64(time.Second) - 1

// ParseStart returns the test name of a start line.
func ParseStart(line string) (string, bool) {
	matches := startPattern.FindStringSubmatch(line)
	if len(matches) < 2 {
		return "", false
	}

	return matches[1], true
}

// ParseFinish returns the test name and recorded duration of a result
// line. The fractional field is read as centiseconds so "3.32" is exactly
// 3320ms.
func ParseFinish(line string) (string, time.Duration, bool) {
	matches := finishPattern.FindStringSubmatch(line)
	if len(matches) < 4 {
		return "", 0, false
	}

	whole, err := strconv.ParseInt(matches[2], 10, 64)
	if err != nil || whole > maxWholeSeconds {
		return "", 0, false
	}

	centis, err := strconv.ParseInt(matches[3], 10, 64)
	if err != nil {
		return "", 0, false
	}

	d := time.Duration(whole)*time.Second + time.Duration(centis)*10*time.Millisecond

	return matches[1], d, true
}

// Classify turns a raw log line into a token. Lines matching neither
// grammar yield a TokenUnknown token.
func Classify(line string) Token {
	if name, ok := ParseStart(line); ok {
		return StartToken(name)
	}

	if name, d, ok := ParseFinish(line); ok {
		return FinishToken(name, d)
	}

	return Token{Kind: TokenUnknown}
}

// ctestParser parses ctest console output.
type ctestParser struct{}

// NewCTestParser creates a new ctest log parser.
func NewCTestParser() Parser {
	return &ctestParser{}
}

// Ensure interface compliance.
var _ Parser = (*ctestParser)(nil)

// ParseLine classifies a ctest log line.
func (p *ctestParser) ParseLine(line string) (Token, bool) {
	tok := Classify(line)

	return tok, tok.Kind != TokenUnknown
}

// Format returns the log format.
func (p *ctestParser) Format() Format {
	return FormatCTest
}
