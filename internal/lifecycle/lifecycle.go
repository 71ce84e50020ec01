// Package lifecycle tracks process drain state and the resources released on exit.
package lifecycle

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the drain flag. /health reports shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

type namedCloser struct {
	name string
	c    io.Closer
}

var (
	closersMu sync.Mutex
	closers   []namedCloser
)

// RegisterCloser adds c to the resources closed by CloseAll.
func RegisterCloser(name string, c io.Closer) {
	closersMu.Lock()
	defer closersMu.Unlock()
	closers = append(closers, namedCloser{name: name, c: c})
}

// CloseAll closes registered resources in reverse registration order, logs
// failures, and forgets them. It returns the number of failures.
func CloseAll(logger *zap.Logger) int {
	closersMu.Lock()
	list := closers
	closers = nil
	closersMu.Unlock()

	failed := 0
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].c.Close(); err != nil {
			failed++
			logger.Error("close failed", zap.String("resource", list[i].name), zap.Error(err))
			continue
		}
		logger.Debug("closed", zap.String("resource", list[i].name))
	}
	return failed
}
