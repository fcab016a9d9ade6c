package terminate

import (
	"context"
	"time"
)

// waitGone polls liveness until the pid disappears, the window elapses, or
// the context is cancelled. It reports gone=true the moment the process is
// no longer alive; a nil error with gone=false means the full window elapsed
// with the process still running. The wait is always bounded, never
// infinite.
func waitGone(ctx context.Context, alive func(int32) bool, pid int32, window, interval time.Duration) (bool, error) {
	deadline := time.Now().Add(window)
	for {
		if !alive(pid) {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		sleep := interval
		if sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			// One final check: the process may have died during the
			// same tick that cancelled us.
			if !alive(pid) {
				return true, nil
			}
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}
