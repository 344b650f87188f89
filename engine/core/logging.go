package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const defaultPrefix = "Engine 🏎️ "

// NewLogger builds the engine logger. Every subsystem derives its own
// logger from it with WithPrefix.
func NewLogger(w io.Writer, level string) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          defaultPrefix,
	})
	if level == "" {
		l.SetLevel(log.InfoLevel)
		return l, nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q: %v", ErrInvalidConfig, level, err)
	}
	l.SetLevel(lvl)
	return l, nil
}
