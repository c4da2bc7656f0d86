package mailsync

import (
	"time"
)

// Backoff computes reconnect delays that grow linearly with the number of
// consecutive failures
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns base × attempt capped at Max. Attempts below one return the
// base delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if b.Max > 0 && time.Duration(attempt) > b.Max/b.Base {
		return b.Max
	}
	d := b.Base * time.Duration(attempt)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
