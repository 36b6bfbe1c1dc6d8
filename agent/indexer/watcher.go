package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/coreagent/runtime/agent/telemetry"
)

// PathFilter decides whether a path should be excluded from watching and
// indexing (e.g. .git, node_modules, build output).
type PathFilter interface {
	ShouldExclude(path string) bool
}

// PathFilterFunc adapts a plain function to PathFilter.
type PathFilterFunc func(path string) bool

func (f PathFilterFunc) ShouldExclude(path string) bool { return f(path) }

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Root          string
	Filter        PathFilter
	DebounceDelay time.Duration // default 100ms, as in kadirpekel-hector's FileWatcher
	Log           telemetry.Logger
}

// Watcher watches Root for filesystem changes and admits them into a
// Queue, debouncing rapid repeated events per path. Grounded directly on
// _examples/kadirpekel-hector/v2/rag.FileWatcher's fsnotify.Add
// tree-walk, debounce-map, and Create/Write/Remove/Rename event-kind
// translation.
type Watcher struct {
	cfg     WatcherConfig
	fsw     *fsnotify.Watcher
	queue   *Queue
	lag     *LagTracker
	batches *BatchTracker

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewWatcher builds a Watcher over cfg.Root, feeding queue/lag/batches as
// events are observed.
func NewWatcher(cfg WatcherConfig, queue *Queue, lag *LagTracker, batches *BatchTracker) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Watcher{cfg: cfg, fsw: fsw, queue: queue, lag: lag, batches: batches}, nil
}

// Start begins watching in the background. An initial bulk scan of every
// matching file under Root is queued under one BatchID so the caller can
// observe when the whole tree has been indexed via BatchTracker.Complete.
func (w *Watcher) Start(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return "", nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	batchID := uuid.NewString()
	n, err := w.setupWatching(batchID)
	if err != nil {
		return "", err
	}
	if n > 0 {
		w.batches.Add(batchID, n)
	}

	go w.watchEvents(ctx)
	return batchID, nil
}

// Stop halts watching and releases the underlying fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.cancel()
	w.running = false
	return w.fsw.Close()
}

func (w *Watcher) setupWatching(batchID string) (int, error) {
	n := 0
	err := filepath.Walk(w.cfg.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if w.cfg.Filter != nil && w.cfg.Filter.ShouldExclude(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := w.fsw.Add(path); err != nil && w.cfg.Log != nil {
				w.cfg.Log.Warn(context.Background(), "indexer: failed to watch directory", "path", path, "error", err)
			}
			return nil
		}
		ev := w.queue.Push(path, EventCreated, batchID, "", time.Now())
		w.lag.Assign(ev.Seq)
		n++
		return nil
	})
	return n, err
}

func (w *Watcher) watchEvents(ctx context.Context) {
	pending := map[string]fsnotify.Event{}
	var pendingMu sync.Mutex
	var timer *time.Timer

	flush := func() {
		pendingMu.Lock()
		events := pending
		pending = map[string]fsnotify.Event{}
		pendingMu.Unlock()

		for _, ev := range events {
			w.handle(ev)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			flush()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if w.cfg.Filter != nil && w.cfg.Filter.ShouldExclude(ev.Name) {
				continue
			}
			pendingMu.Lock()
			pending[ev.Name] = ev
			pendingMu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.DebounceDelay, flush)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.cfg.Log != nil {
				w.cfg.Log.Error(ctx, "indexer: watch error", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		kind = EventCreated
	case ev.Op&fsnotify.Write == fsnotify.Write:
		kind = EventModified
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = EventDeleted
	default:
		return
	}
	tracked := w.queue.Push(ev.Name, kind, "", "", time.Now())
	w.lag.Assign(tracked.Seq)

	if kind != EventDeleted {
		if _, err := os.Stat(ev.Name); err == nil && kind == EventCreated {
			_ = w.fsw.Add(filepath.Dir(ev.Name))
		}
	}
}
