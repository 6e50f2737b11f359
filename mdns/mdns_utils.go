package mdns

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/dns/dnsmessage"
)

// cacheFlush is the top bit of the record class (RFC 6762 section 10.2).
const cacheFlush = 1 << 15

func SetDebug() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// canonicalName lowercases a hostname and makes it fully qualified.
func canonicalName(hostname string) string {
	name := strings.ToLower(strings.TrimSpace(hostname))
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}

func buildRecord(rec *Record, ttl uint32) (*dnsmessage.Resource, error) {
	if rec == nil {
		return nil, errors.New("record cannot be nil")
	}

	host, err := dnsmessage.NewName(canonicalName(rec.Hostname))
	if err != nil {
		return nil, fmt.Errorf("invalid hostname %q: %w", rec.Hostname, err)
	}

	switch {
	case rec.Addr.Is4():
		return buildARecord(rec, host, ttl), nil
	case rec.Addr.Is6():
		return buildAAAARecord(rec, host, ttl), nil
	}
	return nil, fmt.Errorf("unsupported address: %s", rec.Addr)
}

func buildARecord(rec *Record, host dnsmessage.Name, ttl uint32) *dnsmessage.Resource {
	return &dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{
			Name:  host,
			Type:  dnsmessage.TypeA,
			Class: dnsmessage.ClassINET | cacheFlush,
			TTL:   ttl,
		},
		Body: &dnsmessage.AResource{
			A: rec.Addr.As4(),
		},
	}
}

func buildAAAARecord(rec *Record, host dnsmessage.Name, ttl uint32) *dnsmessage.Resource {
	return &dnsmessage.Resource{
		Header: dnsmessage.ResourceHeader{
			Name:  host,
			Type:  dnsmessage.TypeAAAA,
			Class: dnsmessage.ClassINET | cacheFlush,
			TTL:   ttl,
		},
		Body: &dnsmessage.AAAAResource{
			AAAA: rec.Addr.As16(),
		},
	}
}
