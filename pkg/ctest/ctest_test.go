package ctest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStart(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOK   bool
		wantName string
	}{
		{
			name:     "single space",
			line:     " Start 1: start_of_a_test",
			wantOK:   true,
			wantName: "start_of_a_test",
		},
		{
			name:     "large index",
			line:     " Start 30: a_different_test",
			wantOK:   true,
			wantName: "a_different_test",
		},
		{
			name:     "padded index",
			line:     "      Start  1: test_one",
			wantOK:   true,
			wantName: "test_one",
		},
		{
			name:     "no leading whitespace",
			line:     "Start 7: foo.bar/baz",
			wantOK:   true,
			wantName: "foo.bar/baz",
		},
		{
			name:   "finish line",
			line:   "1/2 Test #1: test_one ......................   Passed   0.20 sec",
			wantOK: false,
		},
		{
			name:   "missing index",
			line:   "Start : test_one",
			wantOK: false,
		},
		{
			name:   "missing name",
			line:   "Start 1: ",
			wantOK: false,
		},
		{
			name:   "lower case keyword",
			line:   "start 1: test_one",
			wantOK: false,
		},
		{
			name:   "empty line",
			line:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := ParseStart(tt.line)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestParseFinish(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantOK   bool
		wantName string
		wantDur  time.Duration
	}{
		{
			name:     "passed",
			line:     "1/2 Test #1: test_one ......................   Passed   0.20 sec",
			wantOK:   true,
			wantName: "test_one",
			wantDur:  200 * time.Millisecond,
		},
		{
			name:     "exact centiseconds",
			line:     "3/9 Test #3: precise ....   Passed    3.32 sec",
			wantOK:   true,
			wantName: "precise",
			wantDur:  3320 * time.Millisecond,
		},
		{
			name:     "failed",
			line:     "2/2 Test #2: test_two ......................***Failed   12.05 sec",
			wantOK:   true,
			wantName: "test_two",
			wantDur:  12*time.Second + 50*time.Millisecond,
		},
		{
			name:     "not run",
			line:     "4/4 Test #4: skipped_test ..................***Not Run   0.00 sec",
			wantOK:   true,
			wantName: "skipped_test",
			wantDur:  0,
		},
		{
			name:     "indented",
			line:     "            1/1 Test #1: test_one ......................   Passed   0.20 sec",
			wantOK:   true,
			wantName: "test_one",
			wantDur:  200 * time.Millisecond,
		},
		{
			name:     "trailing carriage return",
			line:     "1/1 Test #1: test_one ...   Passed   1.00 sec\r",
			wantOK:   true,
			wantName: "test_one",
			wantDur:  time.Second,
		},
		{
			name:   "start line",
			line:   "      Start  1: test_one",
			wantOK: false,
		},
		{
			name:   "three fractional digits",
			line:   "1/1 Test #1: test_one ...   Passed   0.200 sec",
			wantOK: false,
		},
		{
			name:   "no fractional part",
			line:   "1/1 Test #1: test_one ...   Passed   2 sec",
			wantOK: false,
		},
		{
			name:   "seconds overflow",
			line:   "1/1 Test #1: test_one ...   Passed   99999999999999999999.00 sec",
			wantOK: false,
		},
		{
			name:   "total test time",
			line:   "Total Test time (real) =   0.50 sec",
			wantOK: false,
		},
		{
			name:   "failed list header",
			line:   "The following tests FAILED:",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, d, ok := ParseFinish(tt.line)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantDur, d)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want Token
	}{
		{"    Start  2: test_two", StartToken("test_two")},
		{"2/2 Test #2: test_two ....   Passed   0.30 sec", FinishToken("test_two", 300*time.Millisecond)},
		{"-- Build files have been written to: /tmp/build", Token{Kind: TokenUnknown}},
		{"Test project /tmp/build", Token{Kind: TokenUnknown}},
		{"", Token{Kind: TokenUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line))
		})
	}
}

func TestTokenKind_String(t *testing.T) {
	assert.Equal(t, "start", TokenStart.String())
	assert.Equal(t, "finish", TokenFinish.String())
	assert.Equal(t, "unknown", TokenUnknown.String())
}

func TestNewParser(t *testing.T) {
	p, err := NewParser(FormatCTest)
	require.NoError(t, err)
	assert.Equal(t, FormatCTest, p.Format())

	p, err = NewParser("")
	require.NoError(t, err)
	assert.Equal(t, FormatCTest, p.Format())

	_, err = NewParser("gotest")
	require.Error(t, err)
}
