package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inercia/carechat/internal/logging"
)

// DebounceDelay is the default quiet period before a changed file is
// reported.
const DebounceDelay = 200 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	// Debounce batches rapid writes. Zero uses DebounceDelay.
	Debounce time.Duration
	// Logger defaults to the upload component logger.
	Logger *slog.Logger
}

// Watch calls fn with the document at path every time its content changes,
// until ctx is done. The parent directory is watched so editors that
// replace the file by renaming are handled. Empty and unchanged content is
// skipped. fn runs on the watcher goroutine; Watch blocks until it returns.
func Watch(ctx context.Context, path string, opts WatchOptions, fn func(*Document)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DebounceDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Upload()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	logger.Debug("watching document", "path", path)

	var (
		last    []byte
		pending bool
		timer   = time.NewTimer(debounce)
	)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("document changed", "path", path, "op", event.Op.String())
			pending = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("document watcher error", "error", err)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false

			doc, err := ReadDocument(path)
			if err != nil {
				logger.Debug("document not readable yet", "path", path, "error", err)
				continue
			}
			if len(doc.Data) == 0 || bytes.Equal(doc.Data, last) {
				continue
			}
			last = doc.Data
			fn(doc)
		}
	}
}
