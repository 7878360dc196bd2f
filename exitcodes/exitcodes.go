// Package exitcodes defines the exit codes used by the sandboxtest CLI.
package exitcodes

// Exit code constants used by sandboxtest
// These constants define the exit codes that the CLI uses to indicate
// the outcome of a sandboxed run:
//
// * Success (0): The sandboxed test passed (or was skipped)
// * TestFailure (1): The sandboxed test failed
// * RuntimeErr (2): The sandbox could not be run or its output was unreadable
const (
	Success     = 0 // Test passed
	TestFailure = 1 // Test failed
	RuntimeErr  = 2 // Protocol violations, runtime errors
)
