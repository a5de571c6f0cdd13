package beanstalk

import (
	"context"
	"time"
)

// DialWithSleep is Dial with the wait between connection attempts replaced.
func DialWithSleep(ctx context.Context, addr string, sleep func(context.Context, time.Duration) error, opt ...Option) (*Client, error) {
	c, err := newClient(addr, opt...)
	if err != nil {
		return nil, err
	}
	c.sleep = sleep

	if err := c.connect(ctx); err != nil {
		c.cancel()
		return nil, err
	}
	return c, nil
}
