// Package logger builds the zerolog component loggers used across the module.
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
)

// Configure sets the global level and output format. Loggers created before
// the call pick up the new writer on their next write.
func Configure(verbose, jsonOutput bool) {
	mu.Lock()
	defer mu.Unlock()

	if jsonOutput {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// New returns a logger tagged with component.
func New(component string) zerolog.Logger {
	return zerolog.New(writer{}).With().Timestamp().Str("component", component).Logger()
}

// writer forwards to the currently configured output.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	mu.RLock()
	out := output
	mu.RUnlock()
	return out.Write(p)
}
