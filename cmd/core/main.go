// Package main provides the SmartTour core command line tool.
// It operates on the same data directory as the desktop server and the
// mobile library: inspect and replay the offline queue, download data for
// offline use and run maintenance.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
