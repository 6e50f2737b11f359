package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/maeshinshin/arduinoweb/config"
	"github.com/maeshinshin/arduinoweb/web"
	"github.com/spf13/cobra"
)

// runServe resolves the Arduino and only then binds the listener, so a
// failed lookup never opens the port.
func runServe(cmd *cobra.Command, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr, err := resolveAddress(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Found Arduino at IP %s\n", addr)

	model := web.NewPageModel(addr, cfg.DeviceHostname, cfg.OverrideAddress != "")
	srv, err := web.NewServer(model, web.Options{TemplateDir: cfg.TemplateDir})
	if err != nil {
		return err
	}

	ln, err := listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	defer ln.Close()

	if cfg.Debug && cfg.TemplateDir != "" {
		if err := enableReload(srv, cfg); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		srv.Stop()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", ln.Addr())
	return srv.Serve(ln)
}

func resolveAddress(ctx context.Context, cfg config.Config) (string, error) {
	r, err := newResolver(cfg)
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, cfg.DeviceHostname, cfg.OverrideAddress)
}

func enableReload(srv *web.Server, cfg config.Config) error {
	watcher, err := web.NewRealWatcher()
	if err != nil {
		return fmt.Errorf("template watcher: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.ReloadPort))
	ln, err := listen("tcp", addr)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	if err := srv.EnableReload(cfg.TemplateDir, watcher, ln); err != nil {
		watcher.Close()
		ln.Close()
		return err
	}
	return nil
}
