// Package sandboxtest runs individual Go tests inside a container while the
// rest of the suite runs natively.
//
// A participating test starts with a call to Delegate. In the normal `go test`
// process the call relaunches the same test binary in a container, filtered to
// exactly that test, relays the test's own output, and marks the outer test
// passed, skipped or failed to match. In the container the call returns false
// and the test body runs for real.
//
// Defaults come from .sandboxtest.yaml in the module root:
//
//	runtime: docker
//	image: golang:1.26
//	args: ["--network", "none"]
//	tests:
//	  TestNeedsNetwork:
//	    args: ["--network", "bridge"]
//
// and can be overridden with SANDBOXTEST_* environment variables or options.
package sandboxtest
