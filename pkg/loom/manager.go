package loom

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Manager is a caller-side compiled-template cache over a template
// directory. The compiler itself performs no staleness detection, so the
// cache owner is responsible for invalidation: Manager provides explicit
// invalidation (Invalidate, Refresh) and filesystem-driven invalidation
// (Watch). All methods are concurrent-safe.
type Manager struct {
	logger *slog.Logger
	opts   Options
	dir    string
	ext    string
	mu     sync.RWMutex
	cache  map[string]*Template
}

// NewManager creates a Manager over the given template directory. Files are
// resolved as <dir>/<name><ext>; the same resolution applies to import tags
// inside the managed templates. The options' Loader field is owned by the
// Manager and must be left nil.
func NewManager(logger *slog.Logger, dir, ext string, opts Options) (*Manager, error) {
	if opts.Loader != nil {
		return nil, fmt.Errorf("loom: manager owns the loader, Options.Loader must be nil")
	}
	opts.Loader = FileLoader{Dir: dir, Ext: ext}
	merged, err := opts.merge()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		logger: logger,
		opts:   merged,
		dir:    dir,
		ext:    ext,
		cache:  make(map[string]*Template),
	}
	logger.Info("Template manager initialized", "dir", dir, "ext", ext)
	return m, nil
}

// Get returns the compiled template for name, compiling and caching it on
// first use. At most one compile per name is in flight at a time.
func (m *Manager) Get(ctx context.Context, name string) (*Template, error) {
	m.mu.RLock()
	tmpl, ok := m.cache[name]
	m.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tmpl, ok = m.cache[name]; ok {
		return tmpl, nil
	}
	tmpl, err := CompileFile(ctx, name, m.opts)
	if err != nil {
		return nil, err
	}
	m.cache[name] = tmpl
	return tmpl, nil
}

// Execute renders the named template with the given locals, writing the
// output to w.
func (m *Manager) Execute(ctx context.Context, w io.Writer, name string, locals map[string]any) error {
	tmpl, err := m.Get(ctx, name)
	if err != nil {
		return err
	}
	out, err := tmpl.Render(locals)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// Invalidate drops the cached compilation for name. The next Get recompiles
// from disk.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, name)
}

// Refresh drops every cached compilation. Call it after bulk template
// changes on disk.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.cache)
	m.logger.Info("Template cache cleared", "dir", m.dir)
}

// Names returns the names of the templates currently present in the managed
// directory, cached or not.
func (m *Manager) Names() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("loom: failed to read template dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), m.ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), m.ext))
	}
	return names, nil
}

// Dir returns the managed template directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Watch invalidates cache entries as their source files change on disk. It
// starts a background goroutine that runs until ctx is canceled. A changed
// file invalidates only its own entry; since imports are resolved at compile
// time, templates importing a changed file become stale until they are
// invalidated too, so bulk edits should be followed by Refresh.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("loom: failed to create watcher: %w", err)
	}
	if err = watcher.Add(m.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("loom: failed to watch template dir: %w", err)
	}

	go func() {
		defer func() {
			_ = watcher.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				base := filepath.Base(event.Name)
				if !strings.HasSuffix(base, m.ext) {
					continue
				}
				name := strings.TrimSuffix(base, m.ext)
				m.Invalidate(name)
				m.logger.Debug("Template invalidated by file change", "template", name, "op", event.Op.String())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Warn("Template watcher error", "error", err)
			}
		}
	}()
	m.logger.Info("Template watcher started", "dir", m.dir)
	return nil
}
