// Package arduinoweb finds the Arduino on the local network once, at startup,
// so the web front-end can hand its address to the browser.
package arduinoweb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// NewResolver returns a Resolver that tries the platform resolver first and
// then each of extra.
func NewResolver(extra ...Lookup) *Resolver {
	return &Resolver{Lookups: append([]Lookup{SystemLookup{}}, extra...)}
}

// Resolve resolves hostname with the platform resolver unless override is set.
func Resolve(ctx context.Context, hostname, override string) (string, error) {
	return NewResolver().Resolve(ctx, hostname, override)
}

// Resolve returns override verbatim when it is non-empty, without touching
// the network. Otherwise it looks hostname up and returns one address,
// preferring IPv4. Every failure is a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, hostname, override string) (string, error) {
	if override != "" {
		logger.Info("Using configured Arduino address", "ip", override)
		return override, nil
	}
	if hostname == "" {
		return "", &ResolutionError{Hostname: hostname, Err: ErrEmptyHostname}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	lookups := r.Lookups
	if len(lookups) == 0 {
		lookups = []Lookup{SystemLookup{}}
	}

	var errs []error
	for _, l := range lookups {
		name := lookupName(l)
		logger.Debug("Looking up Arduino", "hostname", hostname, "via", name)

		addrs, err := l.LookupHost(ctx, hostname)
		if err == nil && len(addrs) == 0 {
			err = errors.New("no addresses returned")
		}
		if err != nil {
			logger.Debug("Lookup failed", "hostname", hostname, "via", name, "error", err)
			errs = append(errs, fmt.Errorf("%s lookup: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		addr := pickAddress(addrs)
		logger.Info("Found Arduino", "hostname", hostname, "ip", addr, "via", name)
		return addr, nil
	}

	return "", &ResolutionError{Hostname: hostname, Err: errors.Join(errs...)}
}
