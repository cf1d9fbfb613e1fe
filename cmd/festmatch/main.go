// Command festmatch drives the festmatch API client from a terminal: sign in,
// inspect and renew the stored session, and call backend endpoints with the
// same refresh handling the app uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
