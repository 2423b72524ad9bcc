package timeutil

import (
	"context"
	"errors"
	"time"
)

// ErrBudgetExceeded is the cancellation cause of a context whose wall-clock
// budget ran out.
var ErrBudgetExceeded = errors.New("wall-clock budget exceeded")

// WithBudget returns a copy of parent that is cancelled with cause
// ErrBudgetExceeded once d has elapsed on clock. A non-positive d means no
// budget; the context is then only cancelled by parent or the returned
// CancelFunc.
func WithBudget(parent context.Context, clock Clock, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	ctx, cancel := context.WithCancelCause(parent)
	timer := clock.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C():
			cancel(ErrBudgetExceeded)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}
