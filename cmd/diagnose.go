package main

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/maeshinshin/arduinoweb"
	"github.com/maeshinshin/arduinoweb/mdns"
)

// diagnoseResolution explains a failed startup lookup and how to get past it.
func diagnoseResolution(err *arduinoweb.ResolutionError) string {
	var b strings.Builder

	fmt.Fprintf(&b, "error: could not find Arduino at address %q\n", err.Hostname)
	if err.Err != nil {
		for _, line := range strings.Split(err.Err.Error(), "\n") {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	b.WriteString("  → set the address manually:  arduinoweb --arduino-ip 192.168.1.100\n")
	b.WriteString("  → or in the environment:     ARDUINO_IP=192.168.1.100 arduinoweb\n")

	if errors.Is(err, arduinoweb.ErrEmptyHostname) {
		b.WriteString("  → or name the device:        arduinoweb --hostname arduino.local\n")
		return b.String()
	}

	switch runtime.GOOS {
	case "windows":
		b.WriteString("  → .local names on Windows need Bonjour (Bonjour Print Services for Windows)\n")
	case "linux":
		b.WriteString("  → .local names on Linux need Avahi (avahi-daemon and libnss-mdns)\n")
	case "darwin":
		b.WriteString("  → Bonjour ships with macOS; check the Arduino is on the same network\n")
	}
	if !errors.Is(err, mdns.ErrNoAnswer) {
		b.WriteString("  → or query mDNS directly:    arduinoweb --mdns-query\n")
	}
	return b.String()
}
