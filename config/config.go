// Package config holds the startup settings. They are read once and never
// change while the process runs.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultHostname   = "arduino.local"
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 5000
	DefaultReloadPort = 35729
)

// Config is decoded from an optional TOML file and then overridden by the
// environment and by command line flags.
type Config struct {
	DeviceHostname  string `toml:"device_hostname"`
	OverrideAddress string `toml:"override_address"`
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Debug           bool   `toml:"debug"`
	TemplateDir     string `toml:"template_dir"`
	MDNSQuery       bool   `toml:"mdns_query"`
	LookupTimeout   string `toml:"lookup_timeout"`
	ReloadPort      int    `toml:"reload_port"`
}

func Default() Config {
	return Config{
		DeviceHostname: DefaultHostname,
		Host:           DefaultHost,
		Port:           DefaultPort,
		ReloadPort:     DefaultReloadPort,
	}
}

// Load starts from Default, applies the TOML file at path when path is not
// empty, then the environment read through getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return cfg, fmt.Errorf("config %s: %s", path, strict.String())
			}
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("ARDUINO_MDNS_NAME"); v != "" {
		c.DeviceHostname = v
	}
	if v := getenv("ARDUINO_IP"); v != "" {
		c.OverrideAddress = v
	}
	if v := getenv("ARDUINOWEB_HOST"); v != "" {
		c.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := getenv("ARDUINOWEB_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ARDUINOWEB_DEBUG %q: %w", v, err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.DeviceHostname == "" && c.OverrideAddress == "" {
		return errors.New("device hostname is empty and no Arduino address is set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Debug && (c.ReloadPort < 1 || c.ReloadPort > 65535) {
		return fmt.Errorf("reload port %d out of range", c.ReloadPort)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// Timeout parses LookupTimeout. An empty value means no timeout.
func (c Config) Timeout() (time.Duration, error) {
	if c.LookupTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LookupTimeout)
	if err != nil {
		return 0, fmt.Errorf("lookup timeout %q: %w", c.LookupTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("lookup timeout %q is negative", c.LookupTimeout)
	}
	return d, nil
}

// Addr is the host:port the web server binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
