package beanstalk

import "time"

// backoff yields the waits between failed connection attempts: the initial
// delay first, doubling after every failure, never above max.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	b := &backoff{initial: initial, max: max}
	b.Reset()
	return b
}

// Next returns the wait before the next attempt and advances the sequence.
func (b *backoff) Next() time.Duration {
	d := b.next
	if b.max > 0 && d > b.max {
		d = b.max
	}
	b.next = d * 2
	return d
}

// Reset starts the sequence over from the initial delay.
func (b *backoff) Reset() {
	b.next = b.initial
}
