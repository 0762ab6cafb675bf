package override

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a single local override file and reloads it on write,
// debounced so a burst of edits triggers a single reload. This is
// additive to the required HTTP ETag poller (Poller): a local override
// file can be picked up on save instead of waiting out a poll interval.
type FileWatcher struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *FileWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		<-w.done
	})
}

// WatchFile wires fsnotify around path and invokes onChange with the
// reparsed State whenever the file is written, created or renamed into
// place. onError receives load failures (bad JSON, path-safety violations)
// without ever tearing down the watch loop.
func WatchFile(ctx context.Context, path, allowedDirectory string, onChange func(*State), onError func(error)) (*FileWatcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("override: watch file requires a change callback")
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("override: resolve watch path: %w", err)
	}
	target = filepath.Clean(target)

	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("override: watch file: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		cancel()
		return nil, fmt.Errorf("override: watch add %s: %w", target, err)
	}

	done := make(chan struct{})
	fw := &FileWatcher{cancel: cancel, done: done}

	go func() {
		defer close(done)
		defer func() { _ = watcher.Close() }()

		const debounce = 25 * time.Millisecond
		var timer *time.Timer
		var timerC <-chan time.Time
		schedule := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerC = timer.C
		}

		reload := func() {
			state, err := LoadFile(target, allowedDirectory)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return
			}
			onChange(state)
		}

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-timerC:
				timerC = nil
				reload()
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(fmt.Errorf("override: watch error: %w", err))
				}
			}
		}
	}()

	return fw, nil
}
