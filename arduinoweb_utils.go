package arduinoweb

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
)

func SetDebug() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// pickAddress returns the first IPv4 literal in addrs, or the first address
// when there is none.
func pickAddress(addrs []string) string {
	for _, a := range addrs {
		if ip, err := netip.ParseAddr(a); err == nil && ip.Unmap().Is4() {
			return ip.Unmap().String()
		}
	}
	return addrs[0]
}

func lookupName(l Lookup) string {
	if n, ok := l.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}
