// Package logging provides level-filtered loggers. Every message is written
// with a "[LEVEL]" prefix and dropped when it falls below the configured
// minimum level.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/logutils"
)

// Domain names the component a logger belongs to. It becomes the log prefix.
type Domain string

const (
	App          Domain = "App"
	Tracker      Domain = "Tracker"
	Storage      Domain = "Storage"
	Sound        Domain = "Sound"
	Booking      Domain = "Booking"
	Confirmation Domain = "Confirmation"
	NoShow       Domain = "NoShow"
	Alerts       Domain = "Alerts"
	Worker       Domain = "Worker"
	Sync         Domain = "Sync"
	UI           Domain = "UI"
)

// Levels are the known log levels, from most to least verbose.
var Levels = []logutils.LogLevel{
	"TRACE",
	"DEBUG",
	"INFO",
	"WARN",
	"ERROR",
	"CRITICAL",
}

var (
	mu     sync.Mutex
	filter = &logutils.LevelFilter{
		Levels:   Levels,
		MinLevel: "INFO",
		Writer:   os.Stderr,
	}
)

// Setup sets the minimum level and the destination shared by all loggers.
// Loggers created before the call pick up the change.
func Setup(level string, w io.Writer) error {
	lvl := logutils.LogLevel(strings.ToUpper(strings.TrimSpace(level)))
	if !validLevel(lvl) {
		return fmt.Errorf("unknown log level %q", level)
	}

	mu.Lock()
	defer mu.Unlock()

	if w != nil {
		filter.Writer = w
	}
	filter.SetMinLevel(lvl)
	return nil
}

// GetLogger returns a logger for the given domain.
func GetLogger(dom Domain) *log.Logger {
	return log.New(writer{}, string(dom)+" ", log.Ldate|log.Ltime|log.Lshortfile)
}

// Discard returns a logger that drops everything, for tests and optional
// dependencies.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func validLevel(lvl logutils.LogLevel) bool {
	for _, l := range Levels {
		if l == lvl {
			return true
		}
	}
	return false
}

// writer forwards to the shared filter under the package lock so Setup can
// swap the destination at runtime.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	return filter.Write(p)
}
