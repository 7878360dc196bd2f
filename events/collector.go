package events

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// maxLineBytes bounds a single record. test2json splits long output lines,
// but canonical records carry the whole captured output in one line.
const maxLineBytes = 64 * 1024 * 1024

// Collector turns a parsed stream into lifecycle events with captured output
// attached. It is not safe for concurrent use.
type Collector struct {
	captured map[string]*strings.Builder
	events   []Event
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		captured: make(map[string]*strings.Builder),
	}
}

// Add consumes one event
func (c *Collector) Add(ev Event) {
	if ev.Phase == PhaseOutput {
		if ev.Kind == KindTest {
			c.capture(ev.Name, ev.Output)
		}
		return
	}

	if ev.Kind == KindTest && (ev.Phase.IsTerminal() || ev.Phase == PhaseIgnored) {
		if buf, ok := c.captured[ev.Name]; ok {
			if ev.Stdout == nil {
				ev.Stdout = stringPtr(buf.String())
			}
			// a rerun of the same name starts from scratch
			delete(c.captured, ev.Name)
		}
	}
	c.events = append(c.events, ev)
}

// Events returns the collected lifecycle events in stream order
func (c *Collector) Events() []Event {
	return c.events
}

// capture appends text to the buffer of name and of every parent test
func (c *Collector) capture(name, text string) {
	for owner := name; owner != ""; owner = parentTest(owner) {
		if isFraming(text, owner) {
			continue
		}
		buf, ok := c.captured[owner]
		if !ok {
			buf = &strings.Builder{}
			c.captured[owner] = buf
		}
		buf.WriteString(text)
	}
}

func parentTest(name string) string {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return ""
	}
	return name[:i]
}

// isFraming reports whether text is one of the lines `go test -v` prints around
// test name itself (=== RUN, --- FAIL: and friends).
func isFraming(text, name string) bool {
	fields := strings.Fields(text)
	if len(fields) < 3 || fields[2] != name {
		return false
	}
	switch fields[0] {
	case "===":
		switch fields[1] {
		case "RUN", "PAUSE", "CONT", "NAME":
			return len(fields) == 3
		}
	case "---":
		switch fields[1] {
		case "PASS:", "FAIL:", "SKIP:":
			return true
		}
	}
	return false
}

// Scan parses every line of r and returns the collected events.
// The first malformed line aborts the scan with a *ParseError.
func Scan(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	c := NewCollector()
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		ev, err := ParseLine(scanner.Bytes())
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.Line = lineNo
			}
			return nil, err
		}
		c.Add(ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Line: lineNo + 1, Err: err}
	}
	return c.Events(), nil
}
