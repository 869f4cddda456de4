// internal/config/watch.go
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
// A file that fails to load or validate is reported and the previous
// config stays current.
type Watcher struct {
	path string

	mu       sync.RWMutex
	current  *Config
	onChange []func(old, new *Config)

	errs chan error
}

// NewWatcher loads path once and returns a watcher holding it.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, current: cfg, errs: make(chan error, 1)}, nil
}

// Config returns the current config.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback run after every successful reload.
// Register callbacks before Run.
func (w *Watcher) OnChange(cb func(old, new *Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, cb)
}

// Errors reports reload failures. Slow readers miss errors.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Run watches the directory of the config file until ctx is done.
// Editors often replace the file, so the directory is watched, not the file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.Reload)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.report(err)
		}
	}
}

// Reload loads the file now.
func (w *Watcher) Reload() {
	cfg, err := LoadFile(w.path)
	if err != nil {
		w.report(fmt.Errorf("reload config: %w", err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	cbs := slices.Clone(w.onChange)
	w.mu.Unlock()

	for _, cb := range cbs {
		cb(old, cfg)
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// DiffConnections lists connection names added and removed between two configs.
func DiffConnections(old, new *Config) (added, removed []string) {
	names := func(c *Config) map[string]struct{} {
		m := make(map[string]struct{})
		if c != nil {
			for _, conn := range c.Connections {
				m[conn.Name] = struct{}{}
			}
		}
		return m
	}
	o, n := names(old), names(new)

	for name := range n {
		if _, ok := o[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range o {
		if _, ok := n[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
