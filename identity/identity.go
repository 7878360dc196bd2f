// Package identity resolves the name of the test function a call is made from.
//
// The name is derived from the caller's own symbol as reported by the runtime,
// so a helper invoked directly inside TestFoo (or inside a closure declared in
// TestFoo) yields "TestFoo" without consulting the testing package.
package identity

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

const maxDepth = 1 << 10

var (
	ErrNoCaller   = errors.New("no caller at the requested stack depth")
	ErrNoSeparator = errors.New("symbol has no package/function separator")
	ErrNotFunction = errors.New("symbol does not name a plain function")
)

// Caller returns the unqualified name of the function skip frames above the
// caller of Caller. Caller(0) names the function that called Caller.
func Caller(skip int) (string, error) {
	if skip < 0 || skip > maxDepth {
		return "", ErrNoCaller
	}
	// frames are walked through CallersFrames so inlined callers are counted
	pcs := make([]uintptr, skip+2)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for i := 0; ; i++ {
		frame, more := frames.Next()
		if i == skip+1 {
			if frame.Function == "" {
				return "", fmt.Errorf("%w: no symbol for pc %#x", ErrNoCaller, frame.PC)
			}
			return FromSymbol(frame.Function)
		}
		if !more {
			return "", ErrNoCaller
		}
	}
}

// FromSymbol extracts the enclosing function name from a fully qualified
// runtime symbol:
//
//	github.com/acme/pkg.TestFoo             -> TestFoo
//	github.com/acme/pkg.TestFoo.func1.2     -> TestFoo
//	github.com/acme/pkg.TestFoo[...].func1  -> TestFoo
func FromSymbol(sym string) (string, error) {
	// the import path may contain dots, the last path element may not
	rest := sym
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return "", fmt.Errorf("%w: %q", ErrNoSeparator, sym)
	}
	name := rest[dot+1:]

	// closures (.funcN, .gowrapN) and generic instantiations are nested
	// scopes of the function we are after
	if i := strings.IndexAny(name, ".["); i >= 0 {
		name = name[:i]
	}
	if name == "" || strings.HasPrefix(name, "(") {
		return "", fmt.Errorf("%w: %q", ErrNotFunction, sym)
	}
	return name, nil
}
