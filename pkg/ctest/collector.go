package ctest

import (
	"bytes"
	"io"
)

// Sink consumes classified tokens in log order.
type Sink interface {
	Feed(tok Token) error
}

// Collector intercepts a log stream, splits it into lines, classifies
// each line and hands the token to a sink.
type Collector interface {
	// Writer returns an io.WriteCloser that intercepts log bytes, passes
	// them through to the downstream writer and feeds complete lines to
	// the sink. Close flushes a trailing line that has no newline.
	Writer() io.WriteCloser

	// Lines returns the number of lines fed to the sink so far.
	Lines() int
}

// NewCollector creates a new collector with the given parser, sink and
// optional downstream writer.
func NewCollector(parser Parser, sink Sink, downstream io.Writer) Collector {
	return &collector{
		parser:     parser,
		sink:       sink,
		downstream: downstream,
	}
}

type collector struct {
	parser     Parser
	sink       Sink
	downstream io.Writer

	lineBuf []byte
	lines   int
	err     error
}

// Ensure interface compliance.
var _ Collector = (*collector)(nil)

// Writer returns an io.WriteCloser that intercepts and parses log lines.
func (c *collector) Writer() io.WriteCloser {
	return &collectorWriter{collector: c}
}

// Lines returns the number of lines processed.
func (c *collector) Lines() int {
	return c.lines
}

// feedLine classifies one line and forwards it. The first sink error is
// sticky.
func (c *collector) feedLine(line []byte) error {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	c.lines++

	tok, ok := c.parser.ParseLine(string(line))
	if !ok {
		tok = Token{Kind: TokenUnknown}
	}

	if err := c.sink.Feed(tok); err != nil {
		c.err = err

		return err
	}

	return nil
}

// collectorWriter implements io.WriteCloser and wraps the collector.
type collectorWriter struct {
	collector *collector
}

// Ensure interface compliance.
var _ io.WriteCloser = (*collectorWriter)(nil)

// Write implements io.Writer.
func (w *collectorWriter) Write(p []byte) (int, error) {
	c := w.collector
	if c.err != nil {
		return 0, c.err
	}

	n := len(p)

	// Pass everything through before parsing.
	if c.downstream != nil {
		if _, err := c.downstream.Write(p); err != nil {
			return n, err
		}
	}

	c.lineBuf = append(c.lineBuf, p...)

	for {
		idx := bytes.IndexByte(c.lineBuf, '\n')
		if idx == -1 {
			break
		}

		line := c.lineBuf[:idx]
		c.lineBuf = c.lineBuf[idx+1:]

		if err := c.feedLine(line); err != nil {
			return n, err
		}
	}

	return n, nil
}

// Close flushes any buffered partial line.
func (w *collectorWriter) Close() error {
	c := w.collector
	if c.err != nil {
		return c.err
	}

	if len(c.lineBuf) == 0 {
		return nil
	}

	line := c.lineBuf
	c.lineBuf = nil

	return c.feedLine(line)
}
