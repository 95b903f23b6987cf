// Package logging wraps github.com/charmbracelet/log with the styled
// prefix and debug-gated verbosity used across the acquisition
// pipeline.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Logger is the process-wide structured logger. Init replaces it;
// callers that never call Init get a usable default at info level.
var Logger = New(false)

func coloredPrefix() string {
	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#2D7D46")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1)
	return style.Render("kurogo")
}

// New builds a logger writing to stderr, reporting the caller and a
// timestamp only when debug is enabled.
func New(debug bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    debug,
		ReportTimestamp: debug,
		TimeFormat:      "15:04:05",
		Prefix:          coloredPrefix(),
	})
	l.SetColorProfile(termenv.TrueColor)
	if debug {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// Init replaces the process-wide Logger, used once at startup once the
// debug flag is known.
func Init(debug bool) {
	Logger = New(debug)
}

// With returns a derived logger carrying the given key/value pairs on
// every subsequent line, e.g. job="<uuid>" show="Example" episode=3.
func With(keyvals ...interface{}) *log.Logger {
	return Logger.With(keyvals...)
}
