package main

import (
	"fmt"
	"net"
	"net/netip"
	"os/signal"
	"syscall"

	"github.com/maeshinshin/arduinoweb/mdns"
	"github.com/spf13/cobra"
)

// Replaced in tests.
var newResponder = mdns.NewResponder

func newAnnounceCmd(opts *options) *cobra.Command {
	var ip string

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Answer mDNS queries for the Arduino hostname",
		Long: "Advertises the configured hostname on multicast DNS so the page can be\n" +
			"developed without the board. The address defaults to this machine's outbound address.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			addr, err := announceAddr(ip)
			if err != nil {
				return err
			}

			r, err := newResponder()
			if err != nil {
				return err
			}
			r.Start()
			defer r.Shutdown()

			if err := r.Register(mdns.Record{Hostname: cfg.DeviceHostname, Addr: addr}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Announcing %s at %s. Press Ctrl+C to exit.\n", cfg.DeviceHostname, addr)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&ip, "ip", "", "Address to announce (default: outbound interface address)")
	return cmd
}

func announceAddr(ip string) (netip.Addr, error) {
	if ip == "" {
		return outboundIP()
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("--ip: %w", err)
	}
	return addr, nil
}

// outboundIP is the local address the OS would use to reach the internet.
// Dialing UDP sends nothing.
func outboundIP() (netip.Addr, error) {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("find outbound address: %w", err)
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).AddrPort().Addr().Unmap(), nil
}
