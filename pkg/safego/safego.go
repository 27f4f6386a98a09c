package safego

import (
	"fmt"

	"go.uber.org/zap"

	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// Go launches fn in its own goroutine, recovering any panic through this
// runtime's own error taxonomy (pkg/errors.AppError, CodeInternal) instead
// of only logging a bare panic value: the scheduler worker (scheduler.go:81)
// is the one goroutine in this process that must never take the whole
// agent down with it, and a recovered panic here is exactly the same
// "inference failed, this request only" condition pkgerrors.AppError
// already models for every other failure mode in the generate loop.
//
// Usage:
//
//	safego.Go(logger, "scheduler-worker", func() {
//	    // work that might panic
//	})
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := pkgerrors.NewInternalErrorWithCause(
					fmt.Sprintf("goroutine %q panicked", name),
					fmt.Errorf("%v", r),
				)
				logger.Error("recovered goroutine panic",
					zap.String("goroutine", name),
					zap.Error(err),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}
