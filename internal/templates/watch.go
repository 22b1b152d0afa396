package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a template file must be quiet before it is
// reloaded.
const DefaultDebounce = 500 * time.Millisecond

// LoadFile reads one JSON template file and upserts it. The id defaults to
// the file name without its extension.
func (r *Registry) LoadFile(ctx context.Context, path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template %s: %w", path, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	if t.ID == "" {
		t.ID = idFromPath(path)
	}
	return r.Upsert(ctx, t)
}

// LoadDir upserts every *.json file in dir and returns how many loaded.
// A file that fails to load is logged and skipped.
func (r *Registry) LoadDir(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		if _, err := r.LoadFile(ctx, p); err != nil {
			r.logger.Warn().Err(err).Str("path", p).Msg("skipping template file")
			continue
		}
		n++
	}
	return n, nil
}

func idFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Watcher reloads template files from a directory as they change.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	debounce time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
	ids    map[string]string // path -> template id
}

// Watch loads dir and keeps the registry in sync with it until ctx is done
// or the watcher is closed. Written or created files are upserted once they
// have been quiet for debounce; removed files remove their template.
func (r *Registry) Watch(ctx context.Context, dir string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		registry: r,
		watcher:  fw,
		debounce: debounce,
		cancel:   cancel,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		ids:      make(map[string]string),
	}

	paths, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	for _, p := range paths {
		w.reload(ctx, p)
	}

	go w.loop(ctx)
	r.logger.Info().Str("dir", dir).Int("templates", len(paths)).Msg("watching template directory")
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	log := w.registry.logger
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				w.schedule(ctx, event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.forget(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("template watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.reload(ctx, path)
		}
	})
}

func (w *Watcher) reload(ctx context.Context, path string) {
	t, err := w.registry.LoadFile(ctx, path)
	if err != nil {
		w.registry.logger.Warn().Err(err).Str("path", path).Msg("template reload failed")
		return
	}
	w.mu.Lock()
	w.ids[path] = t.ID
	w.mu.Unlock()
	w.registry.logger.Debug().Str("path", path).Str("template", t.ID).Msg("template reloaded")
}

func (w *Watcher) forget(ctx context.Context, path string) {
	w.mu.Lock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	id, ok := w.ids[path]
	delete(w.ids, path)
	w.mu.Unlock()

	if !ok {
		return
	}
	if err := w.registry.Remove(ctx, id); err != nil {
		w.registry.logger.Warn().Err(err).Str("template", id).Msg("template remove failed")
	}
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = map[string]*time.Timer{}
	w.mu.Unlock()
	return err
}
