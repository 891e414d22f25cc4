package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay absorbs the bursts editors produce when they replace a file.
const debounceDelay = 200 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and hands the
// parsed result to onChange. Editors tend to rename a temp file over the
// target rather than write in place, so the parent directory is watched and
// events for the config path are debounced before reloading. The returned
// function stops the watch.
func Watch(path string, onChange func(Config)) (func() error, error) {
	if path == "" {
		path = ConfigPath()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	go watchLoop(watcher, path, onChange)

	return watcher.Close, nil
}

func watchLoop(watcher *fsnotify.Watcher, path string, onChange func(Config)) {
	debounce := time.NewTimer(debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceDelay)

		case <-debounce.C:
			cfg, err := LoadFrom(path)
			if err != nil {
				log.Printf("config: reload failed: %v", err)
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}
