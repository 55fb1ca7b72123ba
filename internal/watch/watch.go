// Package watch re-runs a batch whenever the document directory changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/telemetry"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher watches one flat directory for document changes. Bursts of
// events within the debounce window collapse into one trigger.
type Watcher struct {
	Dir        string
	Extensions []string
	Debounce   time.Duration
	// Trigger runs after the directory settles. Calls never overlap.
	Trigger func(ctx context.Context)
	Logger  *slog.Logger
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	exts := w.Extensions
	if len(exts) == 0 {
		exts = document.DefaultExtensions
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	logger.Info("watching document directory", "dir", w.Dir, "debounce", debounce)

	var (
		mu      sync.Mutex
		timer   *time.Timer
		running sync.Mutex
		wg      sync.WaitGroup
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		wg.Add(1)
		timer = time.AfterFunc(debounce, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			running.Lock()
			defer running.Unlock()
			w.Trigger(ctx)
		})
	}

	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, exts) {
				continue
			}
			logger.Debug("document directory changed", "path", event.Name, "op", event.Op.String())
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}

func relevant(event fsnotify.Event, exts []string) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return document.MatchesExtension(name, exts)
}
