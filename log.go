package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// setupLog routes structured logs to the file named by READALOUD_LOGFILE.
// Without it, logging is silenced so the TUI stays clean. The returned
// closer flushes the file on exit.
func setupLog() (func() error, error) {
	if path := os.Getenv("READALOUD_LOGFILE"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("error setting up logging: %w", err)
		}
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
		return f.Close, nil
	}

	log.SetOutput(io.Discard)
	return func() error { return nil }, nil
}
