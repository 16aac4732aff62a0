package core

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// WatchConfig reloads the config file each time it is written and hands the
// result to onChange. Invalid files are logged and skipped. The watch stops
// when ctx is cancelled.
func WatchConfig(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating config watcher")
	}
	// watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watching %s", path)
	}
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					LogWarn("ignoring config change: %v", err)
					continue
				}
				LogInfo("config %s reloaded", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				LogError("config watcher: %v", err)
			}
		}
	}()
	return nil
}
