package launcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

var ErrNoModuleRoot = errors.New("no go.mod found in any parent directory")

// FindModuleRoot walks up from dir to the nearest directory holding a go.mod
// and returns it together with the declared module path.
func FindModuleRoot(dir string) (root string, modulePath string, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve absolute path for '%s': %w", dir, err)
	}
	for {
		data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		if err == nil {
			return dir, modfile.ModulePath(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("failed to read go.mod in %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", ErrNoModuleRoot
		}
		dir = parent
	}
}

// readModulePath returns the module path declared in root/go.mod, or "".
func readModulePath(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}

// relativeTo returns target relative to root, slash separated, and whether
// target lies inside root at all.
func relativeTo(root, target string) (string, bool) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

// packagePath derives the import path of the package in workDir
func packagePath(modulePath, root, workDir string) string {
	if modulePath == "" {
		return ""
	}
	rel, ok := relativeTo(root, workDir)
	if !ok {
		return ""
	}
	return path.Join(modulePath, rel)
}

// lookupTest2JSON finds the test2json tool of the host toolchain
var lookupTest2JSON = func(ctx context.Context, goBinary string) (string, error) {
	out, err := exec.CommandContext(ctx, goBinary, "env", "GOTOOLDIR").Output()
	if err != nil {
		return "", fmt.Errorf("failed to query GOTOOLDIR with %s: %w", goBinary, err)
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" {
		return "", errors.New("GOTOOLDIR is empty")
	}
	tool := filepath.Join(dir, Test2JSONTool)
	if _, err := os.Stat(tool); err != nil {
		return "", fmt.Errorf("test2json not available: %w", err)
	}
	return tool, nil
}
