//go:build unix

package main

import (
	"os"
	"syscall"
)

// shutdownSignals stop the daemon gracefully; SIGTERM comes from process managers.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
