// Package web serves the Arduino front-end page: one route rendering one
// template with the address found at startup.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

const reloadDebounce = 100 * time.Millisecond

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

func SetDebug() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// Options configure a Server.
type Options struct {
	// TemplateDir holds index.html. Empty means the embedded templates.
	TemplateDir string
}

// Server renders the page for a fixed PageModel.
type Server struct {
	model   PageModel
	pages   *templateSet
	httpSrv *http.Server

	reloadHub  *ReloadHub
	reloadSrv  *http.Server
	reloadPort int
	watcher    FileWatcher
	stopOnce   sync.Once
}

// pageData is what index.html is executed with.
type pageData struct {
	Model      PageModel
	ReloadPort int
	ReloadPath string
}

// NewServer parses the templates and takes a private copy of model.
func NewServer(model PageModel, opts Options) (*Server, error) {
	pages, err := newTemplateSet(opts.TemplateDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		model: maps.Clone(model),
		pages: pages,
	}
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the page route wrapped in request logging. Only "/" is
// served; other paths are 404 and methods other than GET and HEAD are 405.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return loggingMiddleware(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := s.pages.render(indexTemplate, pageData{
		Model:      s.model,
		ReloadPort: s.reloadPort,
		ReloadPath: reloadPath,
	})
	if err != nil {
		logger.Error("Template execution error", "template", indexTemplate, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

// Serve answers requests on ln until Stop. It returns nil after Stop.
func (s *Server) Serve(ln net.Listener) error {
	logger.Info("Serving Arduino page", "address", ln.Addr().String(), "arduino_ip", s.model[KeyArduinoIP])
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// EnableReload watches the template directory with watcher and serves the
// browser reload hub on ln. Call it before Serve. It requires a TemplateDir.
func (s *Server) EnableReload(dir string, watcher FileWatcher, ln net.Listener) error {
	if dir == "" {
		return errors.New("template reload needs a template directory")
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	s.watcher = watcher
	s.reloadHub = NewReloadHub()
	s.reloadPort = ln.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.Handle("GET "+reloadPath, s.reloadHub)
	s.reloadSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go s.reloadHub.Run()
	go watchTemplates(watcher, s.pages, reloadDebounce, s.reloadHub.Reload)
	go func() {
		if err := s.reloadSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Reload server stopped", "error", err)
		}
	}()

	logger.Info("Template reload enabled", "dir", dir, "address", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the servers. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.httpSrv.Shutdown(ctx)
		if s.reloadSrv != nil {
			s.reloadSrv.Shutdown(ctx)
		}
		if s.reloadHub != nil {
			s.reloadHub.Stop()
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}
