package sandboxtest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/sandboxtest/failure"
	"github.com/ethereum-optimism/sandboxtest/logging"
)

const fakeTest2JSON = "/usr/local/go/pkg/tool/linux_amd64/test2json"

// TestHelperProcess isn't a real test. It stands in for the container runtime.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("MOCK_STDOUT"))
	code, _ := strconv.Atoi(os.Getenv("MOCK_EXIT"))
	os.Exit(code)
}

type fakeRuntime struct {
	stdout   string
	exitCode int

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeRuntime) build(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, arg...))
	f.mu.Unlock()

	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestHelperProcess$")
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"MOCK_STDOUT="+f.stdout,
		"MOCK_EXIT="+strconv.Itoa(f.exitCode),
	)
	return cmd, func() {}
}

func (f *fakeRuntime) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTB struct {
	errors   []string
	failNows int
	skipped  bool
}

func (f *fakeTB) Helper() {}
func (f *fakeTB) Errorf(format string, args ...any) {
	f.errors = append(f.errors, fmt.Sprintf(format, args...))
}
func (f *fakeTB) FailNow() { f.failNows++ }
func (f *fakeTB) SkipNow() { f.skipped = true }

// outsideSandbox clears the marker and every SANDBOXTEST_* override for the test
func outsideSandbox(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvRuntime, EnvImage, EnvArgs, EnvTest2JSON, EnvLogLevel, EnvProjectRoot} {
		t.Setenv(k, "")
	}
	t.Setenv(EnvInSandbox, "")
	require.NoError(t, os.Unsetenv(EnvInSandbox))
}

func newProject(t *testing.T, config string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/proj\n\ngo 1.26\n"), 0o644))
	if config != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte(config), 0o644))
	}
	return root
}

func stream(name, phase, stdout string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "{\"type\":\"suite\",\"event\":\"started\"}\n")
	fmt.Fprintf(&b, "{\"type\":\"test\",\"event\":\"started\",\"name\":%q}\n", name)
	fmt.Fprintf(&b, "{\"type\":\"test\",\"event\":%q,\"name\":%q,\"stdout\":%q}\n", phase, name, stdout)
	return b.String()
}

func testOptions(root string, rt *fakeRuntime, stdout *bytes.Buffer) []Option {
	return []Option{
		WithProjectRoot(root),
		WithTest2JSON(fakeTest2JSON),
		WithStdout(stdout),
		WithLogger(logging.Discard()),
		withCmdBuilder(rt.build),
	}
}

func TestInSandbox(t *testing.T) {
	outsideSandbox(t)
	assert.False(t, InSandbox())

	t.Setenv(EnvInSandbox, "1")
	assert.True(t, InSandbox())
}

func TestDelegateInsideSandboxRunsBody(t *testing.T) {
	t.Setenv(EnvInSandbox, "1")
	rt := &fakeRuntime{}
	var buf bytes.Buffer
	tb := &fakeTB{}

	delegated := Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...)

	assert.False(t, delegated)
	assert.Empty(t, rt.Calls())
	assert.Empty(t, buf.String())
	assert.Zero(t, tb.failNows)
}

func TestDelegateRelaunchesOnce(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{stdout: stream("TestDelegateRelaunchesOnce", "ok", "hello from the box\n")}
	var buf bytes.Buffer
	tb := &fakeTB{}

	delegated := Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...)

	require.True(t, delegated)
	require.Len(t, rt.Calls(), 1)
	call := rt.Calls()[0]
	assert.Equal(t, "docker", call[0])
	assert.Contains(t, call, "golang:1.26")
	assert.Contains(t, call, "^TestDelegateRelaunchesOnce$")
	assert.Contains(t, call, EnvInSandbox+"=1")
	assert.Equal(t, "hello from the box\n", buf.String())
	assert.Zero(t, tb.failNows)
	assert.Empty(t, tb.errors)
}

func TestDelegateFailureIsNotReportedTwice(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{
		stdout:   stream("TestDelegateFailureIsNotReportedTwice", "failed", "    x_test.go:12: boom\n"),
		exitCode: 1,
	}
	var buf bytes.Buffer
	tb := &fakeTB{}

	require.True(t, Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...))

	assert.Equal(t, "    x_test.go:12: boom\n", buf.String())
	assert.Equal(t, 1, tb.failNows)
	assert.Empty(t, tb.errors)
}

func TestDelegateCustomFailureHandler(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{
		stdout:   stream("TestDelegateCustomFailureHandler", "failed", "boom\n"),
		exitCode: 1,
	}
	var buf bytes.Buffer
	var got []any
	handler := failure.HandlerFunc(func(tb failure.TB, payload any) { got = append(got, payload) })

	opts := append(testOptions(newProject(t, ""), rt, &buf), WithFailureHandler(handler))
	require.True(t, Delegate(&fakeTB{}, "golang:1.26", opts...))

	require.Len(t, got, 1)
	assert.Equal(t, failure.AlreadyReported{Test: "TestDelegateCustomFailureHandler"}, got[0])
}

func TestDelegateSkipInsideSandbox(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{stdout: stream("TestDelegateSkipInsideSandbox", "ignored", "    x_test.go:3: no ipv6\n")}
	var buf bytes.Buffer
	tb := &fakeTB{}

	require.True(t, Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...))

	assert.True(t, tb.skipped)
	assert.Zero(t, tb.failNows)
	assert.Equal(t, "    x_test.go:3: no ipv6\n", buf.String())
}

func TestDelegateAppliesConfigFile(t *testing.T) {
	outsideSandbox(t)
	root := newProject(t, `
runtime: podman
image: golang:1.26-alpine
args: ["--network", "none"]
tests:
  TestDelegateAppliesConfigFile:
    args: ["--cap-drop", "ALL"]
`)
	rt := &fakeRuntime{stdout: stream("TestDelegateAppliesConfigFile", "ok", "")}
	var buf bytes.Buffer

	opts := append(testOptions(root, rt, &buf), WithEnv("HELLO", "WORLD"))
	require.True(t, Delegate(&fakeTB{}, "", opts...))

	require.Len(t, rt.Calls(), 1)
	call := rt.Calls()[0]
	assert.Equal(t, "podman", call[0])

	joined := strings.Join(call, " ")
	assert.Contains(t, joined, "--network none --cap-drop ALL --env HELLO=WORLD golang:1.26-alpine")
}

func TestDelegateEnvironmentOverrides(t *testing.T) {
	outsideSandbox(t)
	root := newProject(t, "image: golang:1.26-alpine\n")
	t.Setenv(EnvImage, "debian:stable")
	t.Setenv(EnvArgs, "--read-only")
	rt := &fakeRuntime{stdout: stream("TestDelegateEnvironmentOverrides", "ok", "")}
	var buf bytes.Buffer

	require.True(t, Delegate(&fakeTB{}, "", testOptions(root, rt, &buf)...))

	require.Len(t, rt.Calls(), 1)
	joined := strings.Join(rt.Calls()[0], " ")
	assert.Contains(t, joined, "--read-only debian:stable")
}

func TestDelegateWithoutImage(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{}
	var buf bytes.Buffer
	tb := &fakeTB{}

	require.True(t, Delegate(tb, "", testOptions(newProject(t, ""), rt, &buf)...))

	assert.Empty(t, rt.Calls())
	assert.Equal(t, 1, tb.failNows)
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], "image is required")
}

func TestDelegateInvalidLogLevel(t *testing.T) {
	outsideSandbox(t)
	t.Setenv(EnvLogLevel, "chatty")
	rt := &fakeRuntime{}
	tb := &fakeTB{}

	root := newProject(t, "")
	require.True(t, Delegate(tb, "golang:1.26",
		WithProjectRoot(root), WithTest2JSON(fakeTest2JSON), withCmdBuilder(rt.build)))

	assert.Empty(t, rt.Calls())
	require.Len(t, tb.errors, 1)
	assert.Contains(t, tb.errors[0], EnvLogLevel)
}

// namedTB reports a name the way *testing.T does
type namedTB struct {
	fakeTB
	name string
}

func (n *namedTB) Name() string { return n.name }

func delegateFromHelper(tb TB, opts ...Option) bool {
	return Delegate(tb, "golang:1.26", opts...)
}

func TestDelegateNameMismatch(t *testing.T) {
	outsideSandbox(t)

	t.Run("called from a helper", func(t *testing.T) {
		rt := &fakeRuntime{}
		var buf bytes.Buffer
		tb := &namedTB{name: "TestDelegateNameMismatch"}

		require.True(t, delegateFromHelper(tb, testOptions(newProject(t, ""), rt, &buf)...))

		assert.Empty(t, rt.Calls(), "nothing is launched for a name -test.run cannot match")
		assert.Equal(t, 1, tb.failNows)
		require.Len(t, tb.errors, 1)
		assert.Contains(t, tb.errors[0], "delegateFromHelper")
	})

	t.Run("called for a subtest", func(t *testing.T) {
		rt := &fakeRuntime{}
		var buf bytes.Buffer
		tb := &namedTB{name: "TestDelegateNameMismatch/sub"}

		require.True(t, Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...))

		assert.Empty(t, rt.Calls())
		assert.Equal(t, 1, tb.failNows)
		require.Len(t, tb.errors, 1)
		assert.Contains(t, tb.errors[0], "TestDelegateNameMismatch/sub")
	})
}

func TestDelegateMatchingName(t *testing.T) {
	outsideSandbox(t)
	rt := &fakeRuntime{stdout: stream("TestDelegateMatchingName", "ok", "")}
	var buf bytes.Buffer
	tb := &namedTB{name: "TestDelegateMatchingName"}

	require.True(t, Delegate(tb, "golang:1.26", testOptions(newProject(t, ""), rt, &buf)...))

	assert.Len(t, rt.Calls(), 1)
	assert.Zero(t, tb.failNows)
}
