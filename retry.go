package leaseq

import "time"

// DefaultRetryWait is used when neither the handler nor the server picks a retry delay.
const DefaultRetryWait = 60 * time.Second

// YieldFloor is the shortest deferral a yielding handler can ask for.
const YieldFloor = 5 * time.Second

func yieldDelay(d time.Duration) time.Duration {
	if d < YieldFloor {
		return YieldFloor
	}
	return d
}

// resolveRetryDelay asks the handler for a retry delay and falls back to def,
// then to DefaultRetryWait. The result is always positive.
func resolveRetryDelay(h *handler, t *Task, def time.Duration) time.Duration {
	if h != nil && h.retryWait != nil {
		if d := h.retryWait(t); d > 0 {
			return d
		}
	}
	if def > 0 {
		return def
	}
	return DefaultRetryWait
}
