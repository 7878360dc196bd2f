// Package failure decides how a failed sandboxed test is reported to the
// outer test.
//
// The sandboxed copy already printed its own diagnostics and the launcher
// relayed them verbatim. Reporting the outer failure with another message
// would point at the relaunch call site, which is not where anything went
// wrong, so the launcher raises the AlreadyReported sentinel and the installed
// handler marks the test failed without printing.
package failure

import (
	"sync"
	"sync/atomic"
)

// TB is the part of testing.TB the handlers need
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	FailNow()
}

// AlreadyReported is the sentinel payload: the failure's output has been
// relayed already and must not be reported again.
type AlreadyReported struct {
	Test string
}

// Handler reports a failure payload against a test
type Handler interface {
	HandleFailure(tb TB, payload any)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(tb TB, payload any)

func (f HandlerFunc) HandleFailure(tb TB, payload any) {
	f(tb, payload)
}

// Default reports any payload as a fatal test error
var Default Handler = HandlerFunc(func(tb TB, payload any) {
	tb.Helper()
	tb.Errorf("%v", payload)
	tb.FailNow()
})

type suppressing struct {
	next Handler
}

// Suppress returns a handler that fails the test silently for the
// AlreadyReported sentinel and hands every other payload to next.
func Suppress(next Handler) Handler {
	if next == nil {
		next = Default
	}
	return &suppressing{next: next}
}

func (s *suppressing) HandleFailure(tb TB, payload any) {
	tb.Helper()
	switch payload.(type) {
	case AlreadyReported, *AlreadyReported:
		tb.FailNow()
	default:
		s.next.HandleFailure(tb, payload)
	}
}

var (
	installOnce sync.Once
	installed   Handler
	installs    atomic.Int32
)

// Install sets up the process-wide suppressing handler on first use, wrapping
// prev (Default when nil). Later calls return the same handler and ignore prev.
func Install(prev Handler) Handler {
	installOnce.Do(func() {
		installed = Suppress(prev)
		installs.Add(1)
	})
	return installed
}

// Installed returns the process-wide handler, installing it over Default if
// nothing has done so yet.
func Installed() Handler {
	return Install(nil)
}
