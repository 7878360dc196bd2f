package sandboxtest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/sandboxtest/failure"
	"github.com/ethereum-optimism/sandboxtest/identity"
	"github.com/ethereum-optimism/sandboxtest/launcher"
	"github.com/ethereum-optimism/sandboxtest/logging"
)

// EnvInSandbox is set in the sandboxed copy and nowhere else
const EnvInSandbox = launcher.EnvInSandbox

// TB is the part of testing.TB that Delegate needs. *testing.T satisfies it.
type TB = failure.TB

// namer is implemented by *testing.T and *testing.B
type namer interface {
	Name() string
}

// InSandbox reports whether this process is the sandboxed copy
func InSandbox() bool {
	_, ok := os.LookupEnv(EnvInSandbox)
	return ok
}

// Option customises a single Delegate call
type Option func(*options)

type options struct {
	ctx         context.Context
	runtime     string
	args        []string
	projectRoot string
	test2json   string
	stdout      io.Writer
	log         log.Logger
	onFailure   failure.Handler
	stripANSI   bool
	cmdBuilder  launcher.CmdBuilder
}

// WithArgs appends raw container runtime arguments, placed before the image
func WithArgs(args ...string) Option {
	return func(o *options) { o.args = append(o.args, args...) }
}

// WithEnv sets an environment variable inside the container
func WithEnv(key, value string) Option {
	return WithArgs("--env", key+"="+value)
}

// WithRuntime selects the container runtime executable (docker, podman)
func WithRuntime(runtime string) Option {
	return func(o *options) { o.runtime = runtime }
}

// WithProjectRoot overrides the directory mounted into the container
func WithProjectRoot(dir string) Option {
	return func(o *options) { o.projectRoot = dir }
}

// WithTest2JSON points at the test2json tool to mount
func WithTest2JSON(path string) Option {
	return func(o *options) { o.test2json = path }
}

// WithStdout redirects the relayed test output
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithLogger sets the logger used for the launch
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFailureHandler replaces the process-wide suppressing handler
func WithFailureHandler(h failure.Handler) Option {
	return func(o *options) { o.onFailure = h }
}

// WithContext bounds the launch. Cancelling it interrupts the runtime client,
// which forwards the interrupt to the container; the client is killed if it
// does not exit within a grace period, and the container may then outlive it.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithStripANSI removes color codes from the relayed output
func WithStripANSI() Option {
	return func(o *options) { o.stripANSI = true }
}

func withCmdBuilder(b launcher.CmdBuilder) Option {
	return func(o *options) { o.cmdBuilder = b }
}

// Delegate hands the calling test over to a container running image.
//
// Outside the sandbox it resolves the caller's test name, runs exactly that
// test in the container, relays its output, reports its outcome against tb,
// and returns true: the caller must return immediately. Inside the sandbox it
// returns false and the caller runs its real body.
//
//	func TestResolvConf(t *testing.T) {
//		if sandboxtest.Delegate(t, "golang:1.26") {
//			return
//		}
//		// only ever runs inside the container
//	}
//
// Delegate must be called directly from a top-level test function: from a
// helper it would resolve the helper's name, and from a t.Run closure the
// parent's name. When tb reports its name, as *testing.T does, both mistakes
// fail the test instead of launching anything.
// An empty image falls back to SANDBOXTEST_IMAGE and then .sandboxtest.yaml.
func Delegate(tb TB, image string, opts ...Option) bool {
	tb.Helper()
	if InSandbox() {
		return false
	}

	name, err := identity.Caller(1)
	if err != nil {
		failure.Default.HandleFailure(tb, fmt.Errorf("sandboxtest.Delegate must be called directly from a test function: %w", err))
		return true
	}
	if n, ok := tb.(namer); ok && n.Name() != name {
		failure.Default.HandleFailure(tb, fmt.Errorf(
			"sandboxtest.Delegate must be called directly from a top-level test function: %s resolved to %s", n.Name(), name))
		return true
	}

	o := &options{ctx: context.Background()}
	for _, opt := range opts {
		opt(o)
	}

	cfg, err := launcherConfig(o, image, name)
	if err != nil {
		failure.Default.HandleFailure(tb, err)
		return true
	}

	l, err := launcher.New(o.ctx, cfg)
	if err != nil {
		failure.Default.HandleFailure(tb, fmt.Errorf("failed to set up sandbox for %s: %w", name, err))
		return true
	}
	l.Run(o.ctx, tb, launcher.Target{Name: name})
	return true
}

func launcherConfig(o *options, image, name string) (launcher.Config, error) {
	root := o.projectRoot
	if root == "" {
		root = os.Getenv(EnvProjectRoot)
	}
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return launcher.Config{}, fmt.Errorf("failed to determine working directory: %w", err)
		}
		if root, _, err = launcher.FindModuleRoot(wd); err != nil {
			return launcher.Config{}, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	settings, err := ResolveSettings(root, name, os.Getenv)
	if err != nil {
		return launcher.Config{}, err
	}

	cfg := launcher.Config{
		Runtime:     settings.Runtime,
		Image:       settings.Image,
		ExtraArgs:   append(settings.Args, o.args...),
		ProjectRoot: root,
		MountPoint:  settings.MountPoint,
		Test2JSON:   settings.Test2JSON,
		Stdout:      o.stdout,
		Log:         o.log,
		OnFailure:   o.onFailure,
		StripANSI:   settings.StripANSI || o.stripANSI,
		CmdBuilder:  o.cmdBuilder,
	}
	if image != "" {
		cfg.Image = image
	}
	if o.runtime != "" {
		cfg.Runtime = o.runtime
	}
	if o.test2json != "" {
		cfg.Test2JSON = o.test2json
	}
	if cfg.Log == nil {
		if cfg.Log, err = logging.New(settings.LogLevel, os.Stderr); err != nil {
			return launcher.Config{}, fmt.Errorf("invalid %s: %w", EnvLogLevel, err)
		}
	}
	return cfg, nil
}
