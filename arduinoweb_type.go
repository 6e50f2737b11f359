package arduinoweb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrEmptyHostname is wrapped by a ResolutionError when there is neither a
// hostname nor an override.
var ErrEmptyHostname = errors.New("empty hostname")

// Lookup resolves a hostname to its addresses.
type Lookup interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// SystemLookup uses the platform resolver, which handles .local names when
// Bonjour or Avahi is installed.
type SystemLookup struct{}

func (SystemLookup) LookupHost(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

func (SystemLookup) Name() string {
	return "system"
}

// Resolver turns the configured device hostname into one address.
type Resolver struct {
	// Lookups are tried in order until one returns an address.
	Lookups []Lookup
	// Timeout bounds the whole resolution. Zero leaves it to the network stack.
	Timeout time.Duration
}

// ResolutionError reports a device hostname that could not be resolved.
type ResolutionError struct {
	Hostname string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not find Arduino at address %q: %v; set the Arduino address manually with --arduino-ip or ARDUINO_IP and run again", e.Hostname, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
