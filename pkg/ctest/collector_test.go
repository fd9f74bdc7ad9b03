package ctest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	tokens []Token
	failOn string
}

func (s *recordingSink) Feed(tok Token) error {
	if s.failOn != "" && tok.Name == s.failOn {
		return errors.New("sink failure")
	}

	s.tokens = append(s.tokens, tok)

	return nil
}

func (s *recordingSink) kinds() []TokenKind {
	kinds := make([]TokenKind, 0, len(s.tokens))
	for _, tok := range s.tokens {
		kinds = append(kinds, tok.Kind)
	}

	return kinds
}

func TestCollector_SplitsChunkedWrites(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(NewCTestParser(), sink, nil)
	w := c.Writer()

	_, err := w.Write([]byte("    Start  1: test_on"))
	require.NoError(t, err)
	assert.Empty(t, sink.tokens)

	_, err = w.Write([]byte("e\nnoise\n1/1 Test #1: test_one ...   Passed   0.20 sec"))
	require.NoError(t, err)
	assert.Equal(t, []TokenKind{TokenStart, TokenUnknown}, sink.kinds())

	require.NoError(t, w.Close())
	assert.Equal(t, []TokenKind{TokenStart, TokenUnknown, TokenFinish}, sink.kinds())
	assert.Equal(t, "test_one", sink.tokens[0].Name)
	assert.Equal(t, 3, c.Lines())
}

func TestCollector_PassesThroughToDownstream(t *testing.T) {
	var downstream bytes.Buffer

	sink := &recordingSink{}
	c := NewCollector(NewCTestParser(), sink, &downstream)

	input := "Start 1: a\r\nunrelated output\r\n"
	_, err := io.Copy(c.Writer(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, input, downstream.String())
	require.Len(t, sink.tokens, 2)
	assert.Equal(t, StartToken("a"), sink.tokens[0])
}

func TestCollector_SinkErrorIsSticky(t *testing.T) {
	sink := &recordingSink{failOn: "bad"}
	c := NewCollector(NewCTestParser(), sink, nil)
	w := c.Writer()

	_, err := w.Write([]byte("Start 1: bad\n"))
	require.Error(t, err)

	_, err = w.Write([]byte("Start 2: good\n"))
	require.Error(t, err)
	require.Error(t, w.Close())
	assert.Empty(t, sink.tokens)
}

func TestCollector_CloseWithoutPartialLine(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(NewCTestParser(), sink, nil)
	w := c.Writer()

	_, err := w.Write([]byte("Start 1: a\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, c.Lines())
}
