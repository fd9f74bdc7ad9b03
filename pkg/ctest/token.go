package ctest

import "time"

// TokenKind classifies a single log line.
type TokenKind int

const (
	// TokenUnknown marks a line that matched neither grammar.
	TokenUnknown TokenKind = iota
	// TokenStart marks a "Start N: name" line.
	TokenStart
	// TokenFinish marks a "K/M Test #N: name ... X.YY sec" line.
	TokenFinish
)

// String returns a human readable name for the kind.
func (k TokenKind) String() string {
	switch k {
	case TokenStart:
		return "start"
	case TokenFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Token is the classified form of a log line. Duration is only set for
// finish tokens.
type Token struct {
	Kind     TokenKind
	Name     string
	Duration time.Duration
}

// StartToken builds a start token for the named test.
func StartToken(name string) Token {
	return Token{Kind: TokenStart, Name: name}
}

// FinishToken builds a finish token for the named test.
func FinishToken(name string, d time.Duration) Token {
	return Token{Kind: TokenFinish, Name: name, Duration: d}
}
