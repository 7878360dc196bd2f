package launcher

import "time"

// Invocation constants
const (
	// DefaultRuntime is the container runtime executable. podman takes the same arguments.
	DefaultRuntime = "docker"

	// DefaultMountPoint is where the project root is mounted read-only
	DefaultMountPoint = "/app"

	// Default go binary name, used to locate the test2json tool
	DefaultGoBinary = "go"

	// SandboxBinDir holds binaries mounted from outside the project root
	SandboxBinDir = "/sandbox/bin"

	// Test2JSONTool is the name of Go's test output converter
	Test2JSONTool = "test2json"

	// EnvInSandbox marks a process as the sandboxed copy
	EnvInSandbox = "SANDBOXTEST_IN_SANDBOX"

	// EnvRunID carries the launch id into the sandbox
	EnvRunID = "SANDBOXTEST_RUN_ID"

	// Runtime arguments
	RunCommand     = "run"
	RemoveFlag     = "--rm"
	VolumeFlag     = "-v"
	WorkDirFlag    = "-w"
	EnvFlag        = "--env"
	ReadOnlySuffix = ":ro"

	// test2json arguments
	Test2JSONPackageFlag = "-p"

	// Test binary arguments
	TestRunFlag     = "-test.run"
	TestVerboseJSON = "-test.v=test2json"

	defaultStderrTailBytes = 64 * 1024 // kept in memory for diagnostics
)

// cancelGracePeriod is how long an interrupted runtime client gets to stop its container
const cancelGracePeriod = 10 * time.Second
