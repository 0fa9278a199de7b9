// Command musicops serves music API tools over HTTP with response caching,
// per-caller rate limiting and upstream retries, and administers the shared
// store from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
