package sandboxtest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up in the project root
const ConfigFileName = ".sandboxtest.yaml"

// Environment variables read by Delegate
const (
	EnvRuntime     = "SANDBOXTEST_RUNTIME"
	EnvImage       = "SANDBOXTEST_IMAGE"
	EnvArgs        = "SANDBOXTEST_ARGS"
	EnvTest2JSON   = "SANDBOXTEST_TEST2JSON"
	EnvLogLevel    = "SANDBOXTEST_LOG_LEVEL"
	EnvProjectRoot = "SANDBOXTEST_PROJECT_ROOT"
)

// FileConfig is the project-wide configuration file
type FileConfig struct {
	Runtime    string                  `yaml:"runtime,omitempty"`
	Image      string                  `yaml:"image,omitempty"`
	Args       []string                `yaml:"args,omitempty"`
	MountPoint string                  `yaml:"mount_point,omitempty"`
	LogLevel   string                  `yaml:"log_level,omitempty"`
	StripANSI  bool                    `yaml:"strip_ansi,omitempty"`
	Tests      map[string]TestOverride `yaml:"tests,omitempty"`
}

// TestOverride adjusts the defaults for one test
type TestOverride struct {
	Image string   `yaml:"image,omitempty"`
	Args  []string `yaml:"args,omitempty"`
}

// Settings is the merged configuration for one launch, before options apply
type Settings struct {
	Runtime    string
	Image      string
	Args       []string
	MountPoint string
	LogLevel   string
	Test2JSON  string
	StripANSI  bool
}

// LoadFileConfig reads path. A missing file yields an empty config.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveSettings merges the config file in projectRoot, the per-test
// override for testName, and the environment, in increasing precedence.
func ResolveSettings(projectRoot, testName string, getenv func(string) string) (Settings, error) {
	file, err := LoadFileConfig(filepath.Join(projectRoot, ConfigFileName))
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Runtime:    file.Runtime,
		Image:      file.Image,
		Args:       append([]string(nil), file.Args...),
		MountPoint: file.MountPoint,
		LogLevel:   file.LogLevel,
		StripANSI:  file.StripANSI,
	}
	if override, ok := file.Tests[testName]; ok {
		if override.Image != "" {
			s.Image = override.Image
		}
		s.Args = append(s.Args, override.Args...)
	}

	if v := getenv(EnvRuntime); v != "" {
		s.Runtime = v
	}
	if v := getenv(EnvImage); v != "" {
		s.Image = v
	}
	if v := getenv(EnvArgs); v != "" {
		s.Args = append(s.Args, strings.Fields(v)...)
	}
	if v := getenv(EnvTest2JSON); v != "" {
		s.Test2JSON = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	return s, nil
}
