package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/sandboxtest/exitcodes"
	"github.com/ethereum-optimism/sandboxtest/flags"
	"github.com/ethereum-optimism/sandboxtest/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

// errTestFailed is returned when the sandboxed test ran and failed. Its output
// has been relayed already, so nothing else is printed.
var errTestFailed = errors.New("sandboxed test failed")

func main() {
	app := newApp()
	// exit only after telemetry is flushed
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if !errors.Is(err, errTestFailed) {
			fmt.Fprintln(c.App.ErrWriter, err)
		}
	}

	// Start telemetry
	shutdown, err := setupTelemetry(app.Name, app.Version, os.Getenv)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}

	err = app.Run(os.Args)
	shutdown()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// telemetryEnabled reports whether an OTLP endpoint is configured. Without one
// the exporter would retry against localhost on every run.
func telemetryEnabled(getenv func(string) string) bool {
	return getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""
}

// setupTelemetry exports launch spans through the OTLP endpoint named by the
// standard OTEL_* variables. Metrics stay with Prometheus.
func setupTelemetry(name, version string, getenv func(string) string) (func(), error) {
	if !telemetryEnabled(getenv) {
		return func() {}, nil
	}
	return otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(name),
		otelconfig.WithServiceVersion(version),
		otelconfig.WithMetricsEnabled(false),
	)
}

// writeMetrics dumps the Prometheus registry once a command is done
func writeMetrics(ctx *cli.Context) error {
	path := ctx.String(flags.MetricsTextfile.Name)
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "sandboxtest"
	app.Usage = "Run single Go tests inside a container"
	app.Description = "sandboxtest relaunches one test of a compiled test binary in a container and inspects structured test output"
	app.Flags = flags.GlobalFlags
	app.After = writeMetrics
	app.Commands = []*cli.Command{
		runCommand(),
		eventsCommand(),
	}
	return app
}

// exitCode maps an error returned by a command to the process exit status
func exitCode(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var exitErr cli.ExitCoder
	switch {
	case errors.Is(err, errTestFailed):
		return exitcodes.TestFailure
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		// protocol errors, containers that never reported, bad flags
		return exitcodes.RuntimeErr
	}
}
