package main

import (
	"net"
	"os"

	"github.com/maeshinshin/arduinoweb"
	"github.com/maeshinshin/arduinoweb/config"
	"github.com/maeshinshin/arduinoweb/mdns"
	"github.com/maeshinshin/arduinoweb/web"
	"github.com/spf13/cobra"
)

// Replaced in tests.
var (
	listen                         = net.Listen
	systemLookup arduinoweb.Lookup = arduinoweb.SystemLookup{}
)

type options struct {
	configPath    string
	hostname      string
	arduinoIP     string
	host          string
	port          int
	debug         bool
	templates     string
	mdnsQuery     bool
	lookupTimeout string
	reloadPort    int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "arduinoweb",
		Short: "Serve a web page for the Arduino on the local network",
		Long: "Finds the Arduino by its mDNS name once at startup (or takes its address from\n" +
			"--arduino-ip) and serves a page embedding that address on port 5000.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "TOML config file")
	pf.StringVar(&opts.hostname, "hostname", config.DefaultHostname, "mDNS name of the Arduino")
	pf.StringVar(&opts.arduinoIP, "arduino-ip", "", "Arduino address; skips the lookup")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging and template reload")
	pf.BoolVar(&opts.mdnsQuery, "mdns-query", false, "Query mDNS directly when the system resolver fails")
	pf.StringVar(&opts.lookupTimeout, "lookup-timeout", "", "Bound the startup lookup, e.g. 5s (default: none)")

	f := root.Flags()
	f.StringVar(&opts.host, "host", config.DefaultHost, "Address to listen on")
	f.IntVar(&opts.port, "port", config.DefaultPort, "Port to listen on")
	f.StringVar(&opts.templates, "templates", "", "Directory holding index.html (default: built in)")
	f.IntVar(&opts.reloadPort, "reload-port", config.DefaultReloadPort, "Port of the browser reload hub in debug mode")

	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newAnnounceCmd(opts))
	return root
}

// load reads the config file and environment, then applies the flags the
// user set explicitly.
func (o *options) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath, os.Getenv)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("hostname") {
		cfg.DeviceHostname = o.hostname
	}
	if flags.Changed("arduino-ip") {
		cfg.OverrideAddress = o.arduinoIP
	}
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("debug") {
		cfg.Debug = o.debug
	}
	if flags.Changed("templates") {
		cfg.TemplateDir = o.templates
	}
	if flags.Changed("mdns-query") {
		cfg.MDNSQuery = o.mdnsQuery
	}
	if flags.Changed("lookup-timeout") {
		cfg.LookupTimeout = o.lookupTimeout
	}
	if flags.Changed("reload-port") {
		cfg.ReloadPort = o.reloadPort
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Debug {
		arduinoweb.SetDebug()
		mdns.SetDebug()
		web.SetDebug()
	}
	return cfg, nil
}

func newResolver(cfg config.Config) (*arduinoweb.Resolver, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	lookups := []arduinoweb.Lookup{systemLookup}
	if cfg.MDNSQuery {
		lookups = append(lookups, mdns.NewQuerier())
	}
	return &arduinoweb.Resolver{Lookups: lookups, Timeout: timeout}, nil
}
