package feed

import "time"

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// Backoff returns the reconnect delay for the given attempt: baseDelay
// doubled per attempt, capped at maxDelay.
func Backoff(retry int) time.Duration {
	if retry <= 0 {
		return baseDelay
	}
	// 2^6 seconds already exceeds the cap.
	if retry > 6 {
		return maxDelay
	}
	d := baseDelay * time.Duration(1<<retry)
	if d > maxDelay {
		return maxDelay
	}
	return d
}
