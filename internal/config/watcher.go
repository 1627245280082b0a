package config

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger matches the subset of the stdlib logger the package needs.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Watch reloads the config file whenever it changes and passes the result
// to onChange. Editors replace files via rename, so the parent directory is
// watched rather than the file itself. Events are debounced; a reload that
// fails to parse is logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger Logger, onChange func(Config)) error {
	path = strings.TrimSpace(path)
	if path == "" || onChange == nil {
		return nil
	}
	if logger == nil {
		logger = nopLogger{}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	const debounce = 200 * time.Millisecond
	var pending *time.Timer
	var pendingC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(debounce)
				pendingC = pending.C
			} else {
				pending.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Printf("config: watch error: %v", err)
		case <-pendingC:
			pending = nil
			pendingC = nil
			cfg, err := Load(path)
			if err != nil {
				logger.Printf("config: reload skipped: %v", err)
				continue
			}
			onChange(ApplyEnv(cfg))
		}
	}
}
