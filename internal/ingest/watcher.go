package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a corpus directory and re-ingests changed JSONL files.
type Watcher struct {
	ingestor  *Ingestor
	corpusDir string

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	Ingestor     *Ingestor
	CorpusDir    string
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new corpus watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	return &Watcher{
		ingestor:     cfg.Ingestor,
		corpusDir:    cfg.CorpusDir,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch starts watching for corpus changes. It blocks until the context is
// cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.corpusDir); err != nil {
		return err
	}

	slog.Info("watching corpus directory", "dir", w.corpusDir)

	// Start debounce processor
	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping corpus watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

// handleEvent queues a changed corpus file for re-ingest.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return
	}
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[event.Name] = time.Now()
	w.pendingMu.Unlock()

	slog.Debug("corpus file changed", "path", event.Name, "op", event.Op.String())
}

// processDebounced processes pending files after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingFiles(ctx)
		}
	}
}

// processPendingFiles re-ingests files that have been stable for the
// debounce period.
func (w *Watcher) processPendingFiles(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range toProcess {
		if ctx.Err() != nil {
			return
		}
		w.reingestFile(ctx, path)
	}
}

// reingestFile reloads one corpus file, or drops its site when the file was
// deleted.
func (w *Watcher) reingestFile(ctx context.Context, path string) {
	site := SiteFromPath(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := w.ingestor.store.DeleteSite(ctx, site); err != nil {
			slog.Warn("failed to remove site", "site", site, "error", err)
			return
		}
		slog.Info("removed deleted corpus file", "file", filepath.Base(path), "site", site)
		return
	}

	// Replace the site wholesale so removed lines disappear too.
	if err := w.ingestor.store.DeleteSite(ctx, site); err != nil {
		slog.Warn("failed to clear site before re-ingest", "site", site, "error", err)
		return
	}
	if _, err := w.ingestor.IngestFile(ctx, path, site); err != nil {
		slog.Warn("failed to re-ingest corpus file", "file", path, "error", err)
	}
}
