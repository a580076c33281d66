package ocrclient

import "time"

// Backoff controls the delay between polls.
type Backoff struct {
	Base        time.Duration // first delay
	Max         time.Duration // cap for exponential growth, 0 = uncapped
	Exponential bool          // double after each poll instead of holding Base
}

// DefaultBackoff starts at one second and doubles up to thirty seconds.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, Exponential: true}
}

// First returns the delay before the second poll.
func (b Backoff) First() time.Duration {
	if b.Base <= 0 {
		return time.Second
	}
	return b.Base
}

// Next returns the delay following cur.
func (b Backoff) Next(cur time.Duration) time.Duration {
	if !b.Exponential {
		return b.First()
	}
	next := cur * 2
	if b.Max > 0 && next > b.Max {
		return b.Max
	}
	return next
}
