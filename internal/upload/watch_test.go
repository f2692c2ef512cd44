package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := make(chan string, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, WatchOptions{Debounce: 20 * time.Millisecond}, func(d *Document) {
			docs <- string(d.Data)
		})
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	expect := func(want string) {
		t.Helper()
		select {
		case got := <-docs:
			if got != want {
				t.Errorf("document = %q, want %q", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	write("first version")
	expect("first version")

	// Same content is not reported again.
	write("first version")
	write("second version")
	expect("second version")

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-docs:
		t.Errorf("unexpected document %q", got)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Watch returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "note.txt")
	err := Watch(context.Background(), path, WatchOptions{}, func(*Document) {})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
