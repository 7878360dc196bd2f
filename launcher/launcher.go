package launcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/sandboxtest/events"
	"github.com/ethereum-optimism/sandboxtest/failure"
	"github.com/ethereum-optimism/sandboxtest/logging"
	"github.com/ethereum-optimism/sandboxtest/metrics"
)

// Target identifies the single test a launch isolates
type Target struct {
	Name string
}

// CmdBuilder creates the runtime process. The returned func releases anything
// the builder allocated and runs after the process exits.
type CmdBuilder func(ctx context.Context, name string, arg ...string) (*exec.Cmd, func())

// Config holds configuration for creating a new Launcher
type Config struct {
	Runtime     string   // container runtime executable, "docker" by default
	Image       string   // isolation image, required
	ExtraArgs   []string // inserted before the image reference
	ProjectRoot string   // mounted read-only; nearest go.mod when empty
	MountPoint  string   // in-container project root, "/app" by default
	WorkDir     string   // host directory the test runs in, os.Getwd() when empty
	Binary      string   // test binary, os.Executable() when empty
	Test2JSON   string   // host test2json tool, found through GoBinary when empty
	GoBinary    string
	Package     string // import path reported by test2json, derived from go.mod when empty
	Stdout      io.Writer
	Log         log.Logger
	OnFailure   failure.Handler
	StripANSI   bool // remove color codes from relayed output
	CmdBuilder  CmdBuilder
}

// Result is the outcome of one sandboxed run
type Result struct {
	RunID    string
	ExitCode int
	Passed   bool // exit status is the only pass/fail source
	Skipped  bool
	Ran      bool // the target reported a result or a skip
	Output   string        // captured output of the target test, as relayed
	Event    *events.Event // first terminal event of the target, nil if none
	Events   []events.Event
	Duration time.Duration
	Stderr   string // tail of the runtime's stderr
}

// Launcher re-executes a single test of the running test binary inside a container
type Launcher struct {
	runtime     string
	image       string
	extraArgs   []string
	projectRoot string
	mountPoint  string
	workDir     string
	binary      string
	test2json   string
	pkg         string
	stdout      io.Writer
	log         log.Logger
	onFailure   failure.Handler
	stripANSI   bool
	cmdBuilder  CmdBuilder
	tracer      trace.Tracer
}

// New creates a Launcher, filling in defaults from the running process
func New(ctx context.Context, cfg Config) (*Launcher, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("image is required")
	}
	if cfg.Runtime == "" {
		cfg.Runtime = DefaultRuntime
	}
	if cfg.MountPoint == "" {
		cfg.MountPoint = DefaultMountPoint
	}
	if !path.IsAbs(cfg.MountPoint) {
		return nil, fmt.Errorf("mount point %q must be an absolute container path", cfg.MountPoint)
	}
	if cfg.GoBinary == "" {
		cfg.GoBinary = DefaultGoBinary
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = logging.Discard()
	}
	if cfg.OnFailure == nil {
		cfg.OnFailure = failure.Installed()
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = DefaultCmdBuilder
	}

	var err error
	if cfg.WorkDir == "" {
		if cfg.WorkDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
	}
	if cfg.WorkDir, err = filepath.Abs(cfg.WorkDir); err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for working directory '%s': %w", cfg.WorkDir, err)
	}

	if cfg.Binary == "" {
		if cfg.Binary, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to determine test binary: %w", err)
		}
	}
	if cfg.Binary, err = filepath.Abs(cfg.Binary); err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test binary '%s': %w", cfg.Binary, err)
	}

	modulePath := ""
	if cfg.ProjectRoot == "" {
		if cfg.ProjectRoot, modulePath, err = FindModuleRoot(cfg.WorkDir); err != nil {
			return nil, fmt.Errorf("failed to find project root from %s: %w", cfg.WorkDir, err)
		}
	} else {
		if cfg.ProjectRoot, err = filepath.Abs(cfg.ProjectRoot); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for project root '%s': %w", cfg.ProjectRoot, err)
		}
		modulePath = readModulePath(cfg.ProjectRoot)
	}
	if cfg.Package == "" {
		cfg.Package = packagePath(modulePath, cfg.ProjectRoot, cfg.WorkDir)
	}

	if cfg.Test2JSON == "" {
		if cfg.Test2JSON, err = lookupTest2JSON(ctx, cfg.GoBinary); err != nil {
			return nil, fmt.Errorf("failed to locate %s: %w", Test2JSONTool, err)
		}
	}

	cfg.Log.Debug("New launcher", "runtime", cfg.Runtime, "image", cfg.Image, "projectRoot", cfg.ProjectRoot,
		"binary", cfg.Binary, "package", cfg.Package, "test2json", cfg.Test2JSON)

	return &Launcher{
		runtime:     cfg.Runtime,
		image:       cfg.Image,
		extraArgs:   append([]string(nil), cfg.ExtraArgs...),
		projectRoot: cfg.ProjectRoot,
		mountPoint:  cfg.MountPoint,
		workDir:     cfg.WorkDir,
		binary:      cfg.Binary,
		test2json:   cfg.Test2JSON,
		pkg:         cfg.Package,
		stdout:      cfg.Stdout,
		log:         cfg.Log,
		onFailure:   cfg.OnFailure,
		stripANSI:   cfg.StripANSI,
		cmdBuilder:  cfg.CmdBuilder,
		tracer:      otel.Tracer("sandbox launcher"),
	}, nil
}

// DefaultCmdBuilder runs the runtime directly. The runtime itself never
// carries the sandbox marker; only the container receives it.
//
// Cancelling ctx interrupts the runtime client, which forwards the signal to
// the container so that --rm can clean it up. The client is killed if it has
// not exited after cancelGracePeriod.
func DefaultCmdBuilder(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Env = withoutEnv(os.Environ(), EnvInSandbox)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = cancelGracePeriod
	return cmd, func() {}
}

func withoutEnv(env []string, key string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, key+"=") {
			out = append(out, kv)
		}
	}
	return out
}

// Invocation composes the runtime arguments that run target inside the container
func (l *Launcher) Invocation(target Target, runID string) ([]string, error) {
	if target.Name == "" {
		return nil, errors.New("target test name cannot be empty")
	}

	args := []string{
		RunCommand,
		RemoveFlag,
		VolumeFlag, l.projectRoot + ":" + l.mountPoint + ReadOnlySuffix,
	}

	// go test builds its binary in a temp dir; mount it on its own unless it
	// already lives in the project
	binInContainer := l.containerPath(l.binary)
	if binInContainer == "" {
		binInContainer = path.Join(SandboxBinDir, filepath.Base(l.binary))
		args = append(args, VolumeFlag, l.binary+":"+binInContainer+ReadOnlySuffix)
	}
	test2jsonInContainer := path.Join(SandboxBinDir, Test2JSONTool)
	args = append(args, VolumeFlag, l.test2json+":"+test2jsonInContainer+ReadOnlySuffix)

	workDir := l.containerPath(l.workDir)
	if workDir == "" {
		workDir = l.mountPoint
	}
	args = append(args,
		WorkDirFlag, workDir,
		EnvFlag, EnvInSandbox+"=1",
		EnvFlag, EnvRunID+"="+runID,
	)
	args = append(args, l.extraArgs...)
	args = append(args, l.image)

	args = append(args, test2jsonInContainer)
	if l.pkg != "" {
		args = append(args, Test2JSONPackageFlag, l.pkg)
	}
	args = append(args,
		binInContainer,
		TestRunFlag, ExactMatch(target.Name),
		TestVerboseJSON,
	)
	return args, nil
}

// ExactMatch returns a -test.run pattern selecting exactly the top-level test name
func ExactMatch(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}

// containerPath maps a host path under the project root into the container,
// or returns "" when it lies outside.
func (l *Launcher) containerPath(hostPath string) string {
	rel, ok := relativeTo(l.projectRoot, hostPath)
	if !ok {
		return ""
	}
	return path.Join(l.mountPoint, rel)
}

// Launch runs target in the container, blocking until it exits, and relays
// the target's captured output to the configured writer. The returned error
// is always a *ProtocolError or a configuration error; a failing test is
// reported through Result.Passed.
func (l *Launcher) Launch(ctx context.Context, target Target) (*Result, error) {
	runID := uuid.New().String()
	ctx, span := l.tracer.Start(ctx, fmt.Sprintf("sandbox %s", target.Name))
	defer span.End()
	span.SetAttributes(
		attribute.String("sandbox.test", target.Name),
		attribute.String("sandbox.image", l.image),
		attribute.String("sandbox.run_id", runID),
	)

	logger := l.log.New("test", target.Name, "run_id", runID)

	args, err := l.Invocation(target, runID)
	if err != nil {
		return nil, NewProtocolError(KindConfig, err)
	}
	logger.Info("Launching sandboxed test", "image", l.image)
	logger.Debug("Sandbox invocation", "runtime", l.runtime, "args", strings.Join(args, " "))

	cmd, cleanup := l.cmdBuilder(ctx, l.runtime, args...)
	defer cleanup()

	var stdout bytes.Buffer
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		RunID:    runID,
		Passed:   runErr == nil,
		Duration: duration,
		Stderr:   stderr.String(),
	}
	if runErr != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(runErr, &exitErr) {
			return nil, l.protocolFailure(span, &ProtocolError{
				Kind:   KindSpawn,
				Err:    fmt.Errorf("failed to run %s: %w", l.runtime, runErr),
				Stderr: result.Stderr,
			})
		}
		result.ExitCode = exitErr.ExitCode()
	}
	span.SetAttributes(attribute.Int("sandbox.exit_code", result.ExitCode))
	if stderr.Truncated() {
		logger.Debug("Runtime stderr truncated", "kept", len(result.Stderr))
	}

	evs, err := events.Scan(&stdout)
	if err != nil {
		return nil, l.protocolFailure(span, &ProtocolError{
			Kind:   KindMalformedLine,
			Err:    err,
			Stderr: result.Stderr,
		})
	}
	result.Events = evs

	if ev, ok := events.FindTerminal(evs, target.Name); ok {
		result.Event = &ev
		result.Output = ev.CapturedOutput()
	} else if ev, ok := events.FindIgnored(evs, target.Name); ok && result.Passed {
		result.Skipped = true
		result.Output = ev.CapturedOutput()
	}
	result.Ran = result.Event != nil || result.Skipped
	if result.Passed && !result.Ran {
		logger.Warn("Sandboxed run passed without running the test, -test.run matched nothing",
			"pattern", ExactMatch(target.Name))
	}

	if err := l.relay(result.Output); err != nil {
		return nil, l.protocolFailure(span, NewProtocolError(KindUnreadable, err))
	}

	outcome := metrics.ResultPass
	switch {
	case !result.Passed:
		outcome = metrics.ResultFail
		span.SetStatus(codes.Error, "sandboxed test failed")
	case result.Skipped:
		outcome = metrics.ResultSkip
	}
	metrics.RecordLaunch(l.image, outcome, duration)
	logger.Info("Sandboxed test finished", "result", outcome, "exit_code", result.ExitCode,
		"events", len(evs), "duration", duration)
	if !result.Passed && result.Stderr != "" {
		logger.Debug("Runtime stderr", "stderr", result.Stderr)
	}

	return result, nil
}

func (l *Launcher) relay(output string) error {
	if l.stripANSI {
		output = stripansi.Strip(output)
	}
	if output == "" {
		return nil
	}
	if _, err := io.WriteString(l.stdout, output); err != nil {
		return fmt.Errorf("failed to relay sandboxed output: %w", err)
	}
	return nil
}

func (l *Launcher) protocolFailure(span trace.Span, err *ProtocolError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Kind)
	metrics.RecordProtocolError(l.image, err.Kind)
	l.log.Error("Sandbox protocol error", "kind", err.Kind, "err", err.Err)
	return err
}

// skipper is implemented by *testing.T and *testing.B
type skipper interface {
	SkipNow()
}

// logger is implemented by *testing.T and *testing.B
type testLogger interface {
	Logf(format string, args ...any)
}

// Run launches target and reports the outcome against tb:
//   - pass: returns normally, noting on tb when the test never ran
//   - skip inside the sandbox: skips tb when it supports SkipNow
//   - failure with relayed output: raises failure.AlreadyReported, which the
//     suppressing handler turns into a silent FailNow
//   - failure without a result, or a protocol error: reported with its cause
func (l *Launcher) Run(ctx context.Context, tb failure.TB, target Target) {
	tb.Helper()

	result, err := l.Launch(ctx, target)
	if err != nil {
		l.onFailure.HandleFailure(tb, err)
		return
	}

	if result.Passed {
		if !result.Ran {
			if lg, ok := tb.(testLogger); ok {
				lg.Logf("sandboxed run of %s exited cleanly but reported no result: %s matched no test in the container",
					target.Name, ExactMatch(target.Name))
			}
		}
		if result.Skipped {
			if s, ok := tb.(skipper); ok {
				s.SkipNow()
			}
		}
		return
	}

	if result.Event == nil {
		l.onFailure.HandleFailure(tb, &TargetFailureError{
			Test:     target.Name,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		})
		return
	}
	l.onFailure.HandleFailure(tb, failure.AlreadyReported{Test: target.Name})
}
