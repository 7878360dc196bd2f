package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/sandboxtest"
	"github.com/ethereum-optimism/sandboxtest/flags"
	"github.com/ethereum-optimism/sandboxtest/launcher"
	"github.com/ethereum-optimism/sandboxtest/logging"
)

// cmdBuilder is swapped out in tests
var cmdBuilder launcher.CmdBuilder = launcher.DefaultCmdBuilder

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one test of a compiled test binary inside a container",
		ArgsUsage: "<TestName>",
		Flags:     flags.RunFlags,
		Action:    runTest,
	}
}

// argsFromEnv lets ResolveSettings merge SANDBOXTEST_ARGS the way Delegate
// does. The other variables arrive through their flags.
func argsFromEnv(key string) string {
	if key == sandboxtest.EnvArgs {
		return os.Getenv(key)
	}
	return ""
}

func runTest(ctx *cli.Context) error {
	if err := flags.CheckRequired(ctx, []cli.Flag{flags.Binary}); err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected exactly one test name, got %d arguments", ctx.NArg())
	}
	name := ctx.Args().First()

	logger, err := logging.New(ctx.String(flags.LogLevel.Name), ctx.App.ErrWriter)
	if err != nil {
		return err
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
	}
	root := ctx.String(flags.ProjectRoot.Name)
	if root == "" {
		if root, _, err = launcher.FindModuleRoot(workDir); err != nil {
			return fmt.Errorf("failed to find project root: %w", err)
		}
	}

	settings, err := sandboxtest.ResolveSettings(root, name, argsFromEnv)
	if err != nil {
		return err
	}

	cfg := launcher.Config{
		Runtime:     settings.Runtime,
		Image:       settings.Image,
		ExtraArgs:   append(settings.Args, ctx.StringSlice(flags.Args.Name)...),
		ProjectRoot: root,
		MountPoint:  settings.MountPoint,
		WorkDir:     workDir,
		Binary:      ctx.String(flags.Binary.Name),
		Test2JSON:   ctx.String(flags.Test2JSON.Name),
		GoBinary:    ctx.String(flags.GoBinary.Name),
		Stdout:      ctx.App.Writer,
		Log:         logger,
		StripANSI:   settings.StripANSI || ctx.Bool(flags.StripANSI.Name),
		CmdBuilder:  cmdBuilder,
	}
	if v := ctx.String(flags.Image.Name); v != "" {
		cfg.Image = v
	}
	if v := ctx.String(flags.Runtime.Name); v != "" {
		cfg.Runtime = v
	}

	l, err := launcher.New(ctx.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to create launcher: %w", err)
	}

	result, err := l.Launch(ctx.Context, launcher.Target{Name: name})
	if err != nil {
		return err
	}

	switch {
	case result.Passed:
		if result.Skipped {
			logger.Info("Sandboxed test skipped", "test", name)
		}
		return nil
	case result.Event == nil:
		return &launcher.TargetFailureError{Test: name, ExitCode: result.ExitCode, Stderr: result.Stderr}
	default:
		return errTestFailed
	}
}
