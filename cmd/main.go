// arduinoweb finds an Arduino on the local network and serves a page that
// knows its address.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/maeshinshin/arduinoweb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var resErr *arduinoweb.ResolutionError
		if errors.As(err, &resErr) {
			fmt.Fprint(os.Stderr, diagnoseResolution(resErr))
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
