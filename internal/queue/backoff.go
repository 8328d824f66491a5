// internal/queue/backoff.go
package queue

import "time"

// Backoff delays a retried item by Base*2^(attempts-1), capped at Max.
// A zero Base disables the delay so retries run on the next tick.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempts int) time.Duration {
	if b.Base <= 0 || attempts <= 0 {
		return 0
	}

	d := b.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		// overflow
		if d <= 0 {
			return b.Max
		}
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
