//go:build integration

// Package cli contains CLI integration tests for carechat.
// Build the binary first: go build -o carechat ./cmd/carechat
package cli

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/inercia/carechat/internal/chattest"
	"github.com/inercia/carechat/tests/mocks/testutil"
)

// run executes the carechat binary and returns its combined output.
func run(t *testing.T, testDir string, args ...string) (string, error) {
	t.Helper()
	binary, err := testutil.GetCarechatBinary()
	if err != nil {
		t.Skipf("carechat binary not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = testutil.TestEnv(testDir)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err = cmd.Run()
	return out.String(), err
}

// TestCLIHelp tests the help command
func TestCLIHelp(t *testing.T) {
	output, err := run(t, t.TempDir(), "--help")
	if err != nil {
		t.Fatalf("carechat --help failed: %v\nOutput: %s", err, output)
	}

	for _, expected := range []string{"carechat", "chat", "upload", "config", "Usage"} {
		if !strings.Contains(strings.ToLower(output), strings.ToLower(expected)) {
			t.Errorf("Help output missing expected string: %s", expected)
		}
	}
}

// TestCLIConfig prints the configuration loaded from --config
func TestCLIConfig(t *testing.T) {
	testDir := t.TempDir()
	configPath, err := testutil.WriteConfig(testDir, "http://care.test:9000")
	if err != nil {
		t.Fatal(err)
	}

	output, err := run(t, testDir, "--config", configPath, "config")
	if err != nil {
		t.Fatalf("carechat config failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "# source: custom file ("+configPath+")") {
		t.Errorf("output missing source line:\n%s", output)
	}
	if !strings.Contains(output, "http://care.test:9000") {
		t.Errorf("output missing base URL:\n%s", output)
	}
}

// TestCLIOnceMode sends one message to the automated assistant
func TestCLIOnceMode(t *testing.T) {
	srv := chattest.NewServer(t)
	testDir := t.TempDir()
	configPath, err := testutil.WriteConfig(testDir, srv.HTTP.URL)
	if err != nil {
		t.Fatal(err)
	}

	output, err := run(t, testDir, "--config", configPath, "--log-level", "error",
		"chat", "--role", "patient", "--id", "patient7", "--once", "Can I shower?")
	if err != nil {
		t.Fatalf("carechat chat --once failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "You said: Can I shower?") {
		t.Errorf("output missing reply:\n%s", output)
	}
}

// TestCLIUpload uploads the fixture discharge note
func TestCLIUpload(t *testing.T) {
	srv := chattest.NewServer(t)
	testDir := t.TempDir()
	configPath, err := testutil.WriteConfig(testDir, srv.HTTP.URL)
	if err != nil {
		t.Fatal(err)
	}
	note, err := testutil.GetFixture("notes/discharge.txt")
	if err != nil {
		t.Fatal(err)
	}

	output, err := run(t, testDir, "--config", configPath, "upload", "--id", "patient3", note)
	if err != nil {
		t.Fatalf("carechat upload failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Discharge note uploaded and system prompt updated.") {
		t.Errorf("output missing acknowledgement:\n%s", output)
	}

	uploads := srv.Uploads()
	if len(uploads) != 1 || uploads[0].Identity != "patient3" || !strings.Contains(uploads[0].Text, "knee surgery") {
		t.Errorf("uploads = %+v", uploads)
	}
}

// TestCLIUploadRejected reports the failure notice and exits non-zero
func TestCLIUploadRejected(t *testing.T) {
	srv := chattest.NewServer(t)
	srv.RejectUploads(1)
	testDir := t.TempDir()
	configPath, err := testutil.WriteConfig(testDir, srv.HTTP.URL)
	if err != nil {
		t.Fatal(err)
	}
	note, err := testutil.GetFixture("notes/discharge.txt")
	if err != nil {
		t.Fatal(err)
	}

	output, err := run(t, testDir, "--config", configPath, "upload", "--id", "patient3", note)
	if err == nil {
		t.Fatalf("carechat upload succeeded, want failure\nOutput: %s", output)
	}
	if !strings.Contains(output, "Failed to upload file.") {
		t.Errorf("output missing failure notice:\n%s", output)
	}
}
