// Package watch feeds changed documents in a directory tree to a handler.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Handler processes one changed file. A non-nil error leaves the file
// eligible for processing on its next event.
type Handler func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	// Extensions lists watched file extensions, e.g. ".pdf". Empty watches
	// every file.
	Extensions []string

	// Debounce is how long changes are collected before processing.
	Debounce time.Duration

	// CacheSize bounds the number of remembered content hashes.
	CacheSize int

	// InitialScan processes files already present when Run starts.
	InitialScan bool
}

// Watcher watches a directory tree and calls its handler once per content
// change. Files whose content hash is unchanged are skipped.
type Watcher struct {
	cfg        Config
	handler    Handler
	extensions map[string]bool
	hashes     *lru.Cache[string, string]

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
}

// New creates a Watcher. It does not start watching until Run.
func New(cfg Config, handler Handler) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	hashes, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("watch: creating hash cache: %w", err)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &Watcher{
		cfg:        cfg,
		handler:    handler,
		extensions: exts,
		hashes:     hashes,
		pending:    make(map[string]fsnotify.Op),
	}, nil
}

// Run watches dir until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, dir); err != nil {
		return err
	}
	slog.Info("watch: started", "dir", dir, "debounce", w.cfg.Debounce, "extensions", w.cfg.Extensions)

	if w.cfg.InitialScan {
		w.scan(ctx, dir)
	}

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch: stopped", "dir", dir)
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: fsnotify error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch: adding %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) scan(ctx context.Context, root string) {
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || ctx.Err() != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accepts(path) {
			w.process(ctx, path)
		}
		return nil
	})
}

func (w *Watcher) accepts(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, path); err != nil {
				slog.Warn("watch: failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}
	if !w.accepts(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()
	slog.Debug("watch: change detected", "path", path, "op", event.Op.String())
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range batch {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	}
}

// process hashes path and calls the handler when its content differs from
// the last processed version.
func (w *Watcher) process(ctx context.Context, path string) {
	hash, err := fileHash(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.hashes.Remove(path)
			return
		}
		slog.Warn("watch: hashing failed", "path", path, "error", err)
		return
	}
	if old, ok := w.hashes.Get(path); ok && old == hash {
		slog.Debug("watch: content unchanged, skipping", "path", path)
		return
	}
	if err := w.handler(ctx, path); err != nil {
		slog.Warn("watch: handler failed", "path", path, "error", err)
		return
	}
	w.hashes.Add(path, hash)
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
