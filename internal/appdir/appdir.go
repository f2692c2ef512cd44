// Package appdir locates the carechat data directory, which holds the
// default log file and exported transcripts. Nothing about a conversation
// is persisted here.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	// DirEnv is the environment variable to override the data directory.
	DirEnv = "CARECHAT_DIR"

	// LogFileName is the name of the default log file.
	LogFileName = "carechat.log"

	// TranscriptsDirName is the name of the transcript export subdirectory.
	TranscriptsDirName = "transcripts"
)

var (
	// cachedDir stores the resolved directory to avoid repeated lookups.
	cachedDir string
	// mu protects cachedDir.
	mu sync.RWMutex
)

// Dir returns the data directory path.
// The directory is determined in the following order:
//  1. CARECHAT_DIR environment variable (if set)
//  2. Platform-specific default:
//     - macOS: ~/Library/Application Support/Carechat
//     - Linux: $XDG_DATA_HOME/carechat or ~/.local/share/carechat
//     - Windows: %APPDATA%\Carechat
//
// This function only returns the path; it does not create the directory.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	if cachedDir != "" {
		return cachedDir, nil
	}

	dir, err := resolveDir()
	if err != nil {
		return "", err
	}

	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, "Library", "Application Support", "Carechat"), nil

	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Carechat"), nil

	default:
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dataDir = filepath.Join(homeDir, ".local", "share")
		}
		return filepath.Join(dataDir, "carechat"), nil
	}
}

// EnsureDir creates the data directory and its transcripts subdirectory.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}

	transcripts := filepath.Join(dir, TranscriptsDirName)
	if err := os.MkdirAll(transcripts, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", transcripts, err)
	}
	return nil
}

// LogFilePath returns the default log file path.
func LogFilePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFileName), nil
}

// TranscriptsDir returns the transcript export directory.
func TranscriptsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, TranscriptsDirName), nil
}

// TranscriptPath resolves where a transcript should be written. An empty
// name yields a timestamped file for identity; a bare file name is placed in
// the transcripts directory; anything with a directory part is used as is.
func TranscriptPath(name, identity string, now time.Time) (string, error) {
	if name == "" {
		name = fmt.Sprintf("%s-%s.html", sanitize(identity), now.Format("20060102-150405"))
	}
	if filepath.Base(name) != name || filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := TranscriptsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// sanitize keeps identity usable as a file name.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "conversation"
	}
	return s
}

// ResetCache clears the cached directory path.
// This is primarily useful for testing.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
