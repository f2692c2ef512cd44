// Package testutil provides shared test utilities for carechat integration tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/inercia/carechat/internal/appdir"
	"github.com/inercia/carechat/internal/config"
)

// FindProjectRoot finds the project root by looking for go.mod
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// GetCarechatBinary returns the path to the carechat binary
func GetCarechatBinary() (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	binary := filepath.Join(root, "carechat")
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		return "", fmt.Errorf("carechat binary not found at %s", binary)
	}
	return binary, nil
}

// GetFixture returns the path to a file under tests/fixtures
func GetFixture(name string) (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, "tests", "fixtures", name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("fixture not found at %s", path)
	}
	return path, nil
}

// WriteConfig writes a configuration file pointing at baseURL into dir and
// returns its path.
func WriteConfig(dir, baseURL string) (string, error) {
	cfg := config.Default()
	cfg.Server.BaseURL = baseURL
	cfg.Session.ReconnectInterval = 0
	data, err := cfg.YAML()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "carechat.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// TestEnv returns environment variables for test execution
func TestEnv(testDir string) []string {
	return append(os.Environ(),
		appdir.DirEnv+"="+testDir,
		config.RCFileEnv+"="+filepath.Join(testDir, "missing-rc"),
	)
}
