package session

import "time"

// TickLimiter paces a loop to a fixed rate.
type TickLimiter struct {
	rate int
	next time.Time
}

// NewTickLimiter creates a limiter for rate ticks per second. A rate of zero
// or less disables pacing.
func NewTickLimiter(rate int) *TickLimiter {
	return &TickLimiter{rate: rate}
}

// Wait blocks until the next tick is due.
// Uses a hybrid sleep/spin approach for better precision at high rates.
func (l *TickLimiter) Wait() {
	if l.rate <= 0 {
		l.next = time.Time{}
		return
	}
	target := time.Second / time.Duration(l.rate)

	if l.next.IsZero() {
		l.next = time.Now().Add(target)
	} else {
		l.next = l.next.Add(target)
	}

	for {
		remaining := time.Until(l.next)
		if remaining <= 0 {
			break
		}
		if remaining > 200*time.Microsecond {
			time.Sleep(remaining - 200*time.Microsecond)
		}
		if time.Until(l.next) <= 0 {
			break
		}
	}

	// resync after a hitch instead of bursting to catch up
	if late := -time.Until(l.next); late > target {
		l.next = time.Now().Add(target)
	}
}
