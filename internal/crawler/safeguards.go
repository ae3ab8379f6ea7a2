package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// SafeRunner wraps job execution with panic recovery
type SafeRunner struct {
	logger     *slog.Logger
	panicCount atomic.Int64
}

// NewSafeRunner creates a safe runner
func NewSafeRunner(logger *slog.Logger) *SafeRunner {
	return &SafeRunner{logger: logger}
}

// Run calls job and turns a panic into a log entry
func (sr *SafeRunner) Run(ctx context.Context, label string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			sr.panicCount.Add(1)
			sr.logger.Error("job panicked",
				"url", label,
				"error", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	job(ctx)
}

// PanicCount returns total number of panics recovered
func (sr *SafeRunner) PanicCount() int64 {
	return sr.panicCount.Load()
}
