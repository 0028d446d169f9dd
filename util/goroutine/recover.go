// Package goroutine holds helpers for background goroutines: panic
// recovery for long-running loops and leak assertions for tests.
package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// Recover recovers from a panic in the calling goroutine and logs it.
// Use it as the first deferred call of a background goroutine. With a nil
// logger the panic goes to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, StackTraceBufferSize)
		n := runtime.Stack(buf, false)

		if logger != nil {
			logger.Errorw("Goroutine panic recovered",
				"goroutine", name,
				"panic", r,
				"stack", string(buf[:n]))
			return
		}
		fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
			name, r, string(buf[:n]))
	}
}

// Go runs fn in a new goroutine guarded by Recover.
func Go(name string, logger *zap.SugaredLogger, fn func()) {
	go func() {
		defer Recover(name, logger)
		fn()
	}()
}
