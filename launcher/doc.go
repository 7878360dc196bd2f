// Package launcher re-executes one test of the running test binary inside a
// container and brings its outcome back.
//
// The main components are:
//   - Launcher.Invocation: composes the container runtime arguments. The project
//     root is mounted read-only, the test binary and Go's test2json tool are
//     mounted next to it, and the child is marked with SANDBOXTEST_IN_SANDBOX.
//   - Launcher.Launch: runs the container synchronously, parses its structured
//     event stream, and relays the captured output of the target test.
//   - Launcher.Run: Launch plus reporting through a failure.Handler so that a
//     failure whose output was already relayed is not reported twice.
//
// No timeout is imposed here; cancel the context to stop a hung container.
package launcher
