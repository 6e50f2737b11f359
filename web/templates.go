package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const indexTemplate = "index.html"

//go:embed templates/*.html
var templatesFS embed.FS

// templateSet is the parsed page templates. In debug mode it is re-parsed
// while requests are served, so access goes through mu.
type templateSet struct {
	fsys fs.FS
	mu   sync.RWMutex
	tpl  *template.Template
}

// newTemplateSet parses the templates in dir, or the embedded ones when dir
// is empty.
func newTemplateSet(dir string) (*templateSet, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(templatesFS, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	ts := &templateSet{fsys: fsys}
	if err := ts.load(); err != nil {
		return nil, err
	}
	return ts, nil
}

// load parses every template. On failure the previous set stays in place.
func (ts *templateSet) load() error {
	tpl, err := template.ParseFS(ts.fsys, "*.html")
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	if tpl.Lookup(indexTemplate) == nil {
		return fmt.Errorf("parse templates: %s not found", indexTemplate)
	}

	ts.mu.Lock()
	ts.tpl = tpl
	ts.mu.Unlock()
	return nil
}

func (ts *templateSet) render(name string, data any) ([]byte, error) {
	ts.mu.RLock()
	tpl := ts.tpl
	ts.mu.RUnlock()

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileWatcher is the part of fsnotify.Watcher the template reloader uses.
type FileWatcher interface {
	Add(name string) error
	Close() error
	Events() chan fsnotify.Event
	Errors() chan error
}

// RealWatcher adapts fsnotify.Watcher to FileWatcher.
type RealWatcher struct {
	*fsnotify.Watcher
}

func NewRealWatcher() (*RealWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &RealWatcher{Watcher: w}, nil
}

func (w *RealWatcher) Events() chan fsnotify.Event {
	return w.Watcher.Events
}

func (w *RealWatcher) Errors() chan error {
	return w.Watcher.Errors
}

// watchTemplates re-parses ts after template files change, waiting for
// debounce without further events. onReload runs after each successful parse.
func watchTemplates(w FileWatcher, ts *templateSet, debounce time.Duration, onReload func()) {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-w.Events():
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".html") {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Template changed", "file", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := ts.load(); err != nil {
					logger.Error("Failed to reload templates, keeping previous version", "error", err)
					return
				}
				logger.Info("Reloaded templates")
				if onReload != nil {
					onReload()
				}
			})

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			logger.Error("Template watcher error", "error", err)
		}
	}
}
