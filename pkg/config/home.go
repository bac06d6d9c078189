package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "FLOWRUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the flowrunner home directory, which holds keys.json,
// prefixes.yaml, Tests/ and drivers/.
//
// Resolution order:
//  1. $FLOWRUNNER_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetKeysPath returns <home>/keys.json.
func GetKeysPath() string {
	return filepath.Join(GetHome(), "keys.json")
}

// GetPrefixesPath returns <home>/prefixes.yaml.
func GetPrefixesPath() string {
	return filepath.Join(GetHome(), "prefixes.yaml")
}

// GetDriversDir returns <home>/drivers, searched for chromedriver and
// geckodriver.
func GetDriversDir() string {
	return filepath.Join(GetHome(), "drivers")
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/flowrunner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. Current working directory
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
