// Package watch ingests documents dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

var (
	// ErrNotDirectory indicates the watched path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")
)

// SourceKey is the metadata key under which ingested files are tagged with
// their base name.
const SourceKey = "source"

// Ingester adds documents to a store and retires the nodes of an earlier
// version of the same file.
type Ingester interface {
	AddDocument(ctx context.Context, path string, metadata vectorstore.Filter) ([]uint64, error)
	Query(ctx context.Context, vector []float32, filters []vectorstore.Filter) ([]vectorstore.Node, error)
	Delete(ctx context.Context, id uint64) error
}

var _ Ingester = (*vectorstore.Store)(nil)

// Config configures a Watcher.
type Config struct {
	// Debounce is how long a file must stay quiet before it is ingested.
	Debounce time.Duration

	// Extensions lists the file extensions to ingest, with the leading dot.
	// Matching is case-insensitive.
	Extensions []string
}

// Result reports one ingestion. Replaced holds the ids of the nodes from a
// previous ingestion of the same file that were deleted.
type Result struct {
	Path     string
	IDs      []uint64
	Replaced []uint64
	Err      error
	Time     time.Time
}

// Watcher ingests files created or written in one directory. Bursts of
// events for the same file collapse into a single ingestion. When a file is
// ingested again, the nodes tagged with its name are replaced rather than
// duplicated.
type Watcher struct {
	dir      string
	ingester Ingester
	config   Config
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	results chan Result
	stop    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup

	ingestMu sync.Mutex // one ingestion at a time
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, ingester Ingester, cfg Config, logger *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	if ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	exts := make([]string, len(cfg.Extensions))
	for i, ext := range cfg.Extensions {
		exts[i] = strings.ToLower(ext)
	}
	cfg.Extensions = exts

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		dir:      dir,
		ingester: ingester,
		config:   cfg,
		logger:   logger.Named("watch"),
		watcher:  watcher,
		results:  make(chan Result, 16),
		stop:     make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Events are processed in a background goroutine
// until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory",
		zap.String("dir", w.dir),
		zap.Strings("extensions", w.config.Extensions),
		zap.Duration("debounce", w.config.Debounce))

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher, cancels pending ingestions and waits for running
// ones to finish.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	for path, timer := range w.pending {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
}

// Results returns ingestion outcomes. Results are dropped when nobody reads
// them.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if w.accepts(event.Name) {
					w.schedule(ctx, event.Name)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// accepts reports whether path is a visible regular file with an allowed
// extension.
func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	if !slices.Contains(w.config.Extensions, strings.ToLower(filepath.Ext(base))) {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stop:
		return
	default:
	}

	if timer, ok := w.pending[path]; ok && timer.Stop() {
		timer.Reset(w.config.Debounce)
		return
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.config.Debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		w.ingest(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()

	tag := vectorstore.Filter{Key: SourceKey, Value: filepath.Base(path)}
	previous, err := w.ingester.Query(ctx, nil, []vectorstore.Filter{tag})
	if err != nil {
		w.logger.Warn("looking up previous ingestion", zap.String("path", path), zap.Error(err))
	}

	result := Result{Path: path}
	result.IDs, result.Err = w.ingester.AddDocument(ctx, path, tag)
	if result.Err != nil {
		w.logger.Error("ingestion failed", zap.String("path", path), zap.Error(result.Err))
	} else {
		result.Replaced = w.retire(ctx, previous)
		w.logger.Info("ingested file",
			zap.String("path", path),
			zap.Int("chunks", len(result.IDs)),
			zap.Int("replaced", len(result.Replaced)))
	}
	result.Time = time.Now()

	select {
	case w.results <- result:
	default:
	}
}

// retire deletes the nodes of an earlier ingestion. Nodes already gone are
// skipped.
func (w *Watcher) retire(ctx context.Context, nodes []vectorstore.Node) []uint64 {
	var deleted []uint64
	for _, n := range nodes {
		err := w.ingester.Delete(ctx, n.TextID)
		switch {
		case err == nil:
			deleted = append(deleted, n.TextID)
		case errors.Is(err, vectorstore.ErrNotFound):
		default:
			w.logger.Warn("deleting replaced node", zap.Uint64("id", n.TextID), zap.Error(err))
		}
	}
	return deleted
}
