package flags

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/sandboxtest"
)

func allFlags() []cli.Flag {
	var out []cli.Flag
	out = append(out, GlobalFlags...)
	out = append(out, RunFlags...)
	out = append(out, ExtractFlags...)
	return out
}

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalRunFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range allFlags() {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range allFlags() {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			if flag == Args {
				require.Empty(t, envFlags, "SANDBOXTEST_ARGS is merged by the run command")
				return
			}
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, FlagNameToEnvVarName(flagName), envFlags[0])
		})
	}
}

// The CLI and the library read the same variables
func TestSharedEnvVars(t *testing.T) {
	assert.Equal(t, "SANDBOXTEST_IMAGE", Image.EnvVars[0])
	assert.Equal(t, "SANDBOXTEST_RUNTIME", Runtime.EnvVars[0])
	assert.Equal(t, "SANDBOXTEST_TEST2JSON", Test2JSON.EnvVars[0])
	assert.Equal(t, "SANDBOXTEST_LOG_LEVEL", LogLevel.EnvVars[0])
	assert.Equal(t, "SANDBOXTEST_PROJECT_ROOT", ProjectRoot.EnvVars[0])
	assert.Equal(t, sandboxtest.EnvArgs, FlagNameToEnvVarName(Args.Name))
	assert.Equal(t, sandboxtest.EnvImage, Image.EnvVars[0])
	assert.Equal(t, sandboxtest.EnvLogLevel, LogLevel.EnvVars[0])
}

func TestLogLevelValidation(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		shouldError bool
	}{
		{"default", []string{"app"}, false},
		{"debug", []string{"app", "--log.level", "debug"}, false},
		{"off", []string{"app", "--log.level", "off"}, false},
		{"unknown", []string{"app", "--log.level", "chatty"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := &cli.App{
				Flags:  GlobalFlags,
				Action: func(ctx *cli.Context) error { return nil },
			}
			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckRequired(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(Binary.Name, "", "")
	ctx := cli.NewContext(cli.NewApp(), set, nil)

	err := CheckRequired(ctx, requiredRunFlags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag binary is required")

	require.NoError(t, set.Set(Binary.Name, "/tmp/x.test"))
	assert.NoError(t, CheckRequired(ctx, requiredRunFlags))
}
