package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file whenever it changes on disk and delivers the
// result to onChange. The parent directory is watched rather than the file
// itself, since editors and atomic writers replace the file. A reload that
// fails to parse is logged and skipped; the previous config stays in effect.
// The returned stop function releases the watcher.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadFromPath(target)
				if err != nil {
					log.Printf("[config] reload of %s failed: %v", target, err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[config] watch error: %v", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
