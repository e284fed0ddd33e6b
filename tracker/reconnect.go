package tracker

import "time"

// DefaultReconnectDelay is the wait between a transport drop and the next connection attempt
const DefaultReconnectDelay = 3 * time.Second

// ReconnectPolicy decides how long to wait before each reconnect attempt
// and when to give up.
type ReconnectPolicy struct {
	// Delay before the first attempt
	Delay time.Duration

	// MaxDelay caps the delay when Multiplier > 1; zero means uncapped
	MaxDelay time.Duration

	// Multiplier grows the delay per consecutive failure; <= 1 keeps it fixed
	Multiplier float64

	// MaxAttempts bounds consecutive reconnects; zero means unlimited
	MaxAttempts int
}

// FixedReconnect retries forever after a fixed delay
func FixedReconnect(delay time.Duration) ReconnectPolicy {
	return ReconnectPolicy{Delay: delay, Multiplier: 1}
}

// ExponentialReconnect doubles the delay up to maxDelay and stops after maxAttempts
func ExponentialReconnect(base, maxDelay time.Duration, maxAttempts int) ReconnectPolicy {
	return ReconnectPolicy{Delay: base, MaxDelay: maxDelay, Multiplier: 2, MaxAttempts: maxAttempts}
}

// Backoff returns the delay before the given attempt (1-based)
func (p ReconnectPolicy) Backoff(attempt int) time.Duration {
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if p.Multiplier <= 1 || attempt <= 1 {
		return delay
	}

	d := float64(delay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Exhausted reports whether the given attempt (1-based) exceeds MaxAttempts
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
