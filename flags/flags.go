package flags

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/sandboxtest/launcher"
	"github.com/ethereum-optimism/sandboxtest/logging"
)

const EnvVarPrefix = "SANDBOXTEST"

// prefixEnvVar returns the single env var a flag is read from
func prefixEnvVar(name string) []string {
	return []string{FlagNameToEnvVarName(name)}
}

// FlagNameToEnvVarName maps "log.level" to "SANDBOXTEST_LOG_LEVEL"
func FlagNameToEnvVarName(name string) string {
	name = strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return EnvVarPrefix + "_" + strings.ToUpper(name)
}

var (
	Binary = &cli.StringFlag{
		Name:     "binary",
		Required: true,
		EnvVars:  prefixEnvVar("binary"),
		Usage:    "Path to a compiled test binary (eg. built with 'go test -c')",
	}
	Image = &cli.StringFlag{
		Name:    "image",
		EnvVars: prefixEnvVar("image"),
		Usage:   "Container image to run the test in. Falls back to .sandboxtest.yaml",
	}
	// Args has no EnvVars: SANDBOXTEST_ARGS is split on whitespace, as Delegate
	// does, rather than on commas, and is merged by the run command.
	Args = &cli.StringSliceFlag{
		Name:  "args",
		Usage: "Extra container runtime arguments, placed before the image and after SANDBOXTEST_ARGS. Repeatable",
	}
	Runtime = &cli.StringFlag{
		Name:    "runtime",
		EnvVars: prefixEnvVar("runtime"),
		Usage:   fmt.Sprintf("Container runtime executable (default %q or .sandboxtest.yaml)", launcher.DefaultRuntime),
	}
	ProjectRoot = &cli.StringFlag{
		Name:    "project-root",
		EnvVars: prefixEnvVar("project-root"),
		Usage:   "Directory mounted read-only into the container. Defaults to the nearest go.mod",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		EnvVars: prefixEnvVar("workdir"),
		Usage:   "Host directory of the test's package, used as the container working directory",
	}
	Test2JSON = &cli.StringFlag{
		Name:    "test2json",
		EnvVars: prefixEnvVar("test2json"),
		Usage:   "Path to Go's test2json tool. Defaults to the one in 'go env GOTOOLDIR'",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   launcher.DefaultGoBinary,
		EnvVars: prefixEnvVar("go-binary"),
		Usage:   "Go binary used to locate test2json",
	}
	StripANSI = &cli.BoolFlag{
		Name:    "strip-ansi",
		EnvVars: prefixEnvVar("strip-ansi"),
		Usage:   "Remove ANSI color codes from relayed test output",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVar("log.level"),
		Usage:   "Log level: trace, debug, info, warn, error, crit or off",
		Action: func(_ *cli.Context, v string) error {
			_, _, err := logging.ParseLevel(v)
			return err
		},
	}
	MetricsTextfile = &cli.StringFlag{
		Name:    "metrics.textfile",
		EnvVars: prefixEnvVar("metrics.textfile"),
		Usage:   "Write Prometheus metrics to this file when the command finishes",
	}
	Name = &cli.StringFlag{
		Name:     "name",
		Required: true,
		EnvVars:  prefixEnvVar("name"),
		Usage:    "Test name to extract",
	}
)

var GlobalFlags = []cli.Flag{
	LogLevel,
	MetricsTextfile,
}

var requiredRunFlags = []cli.Flag{
	Binary,
}

var optionalRunFlags = []cli.Flag{
	Image,
	Args,
	Runtime,
	ProjectRoot,
	WorkDir,
	Test2JSON,
	GoBinary,
	StripANSI,
}

var RunFlags []cli.Flag

var ExtractFlags = []cli.Flag{
	Name,
}

func init() {
	RunFlags = append(requiredRunFlags, optionalRunFlags...)
}

// CheckRequired returns an error naming the first required flag that was not set
func CheckRequired(ctx *cli.Context, required []cli.Flag) error {
	for _, f := range required {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
