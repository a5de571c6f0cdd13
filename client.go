// Package beanstalk is a client for the beanstalkd work queue protocol.
//
// A Client owns one persistent TCP connection. Commands are pipelined: every
// call writes its request and waits for the reply, and replies are matched to
// requests strictly in the order the requests were written. When the
// connection drops, every outstanding command fails with ErrConnectionLost and
// the client reconnects in the background with exponential backoff.
//
//	c, err := beanstalk.Dial(ctx, "localhost:11300")
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	id, err := c.Put(ctx, []byte("hello"), beanstalk.TTR(5*time.Second))
//
// Server side failures come back as *ProtocolError carrying the literal reply
// tag and can be matched with errors.Is against ErrTimedOut, ErrNotFound and
// the other tag sentinels.
package beanstalk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// State is the connection state of a Client.
type State int32

const (
	// Disconnected means no connection is open and none is being attempted.
	Disconnected State = iota
	// Connecting means a connection attempt or backoff wait is in progress.
	Connecting
	// Connected means commands are accepted.
	Connected
	// Closing means Close was called and the client is hanging up.
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Client is a beanstalkd client. It is safe for concurrent use; concurrent
// commands are serialised onto the single connection.
type Client struct {
	addr    string
	opts    options
	logger  Logger
	metrics *clientMetrics
	sel     *selection

	// mu guards state and sess, and makes queuing a reply slot and queuing
	// the bytes one step.
	mu    sync.Mutex
	state State
	sess  *session

	reconnect atomic.Bool

	// sleep waits between connection attempts.
	sleep func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the beanstalkd server at addr. Failed attempts are retried
// with backoff until ctx is done, unless retrying was disabled with
// NoRetryOption or a negative RetryDelayOption.
func Dial(ctx context.Context, addr string, opt ...Option) (*Client, error) {
	c, err := newClient(addr, opt...)
	if err != nil {
		return nil, err
	}

	if err := c.connect(ctx); err != nil {
		c.cancel()
		return nil, err
	}
	return c, nil
}

func newClient(addr string, opt ...Option) (*Client, error) {
	opts := newOptions(opt)
	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	c := &Client{
		addr:   addr,
		opts:   opts,
		logger: opts.logger,
		sel:    newSelection(),
		sleep:  sleepContext,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.reconnect.Store(true)
	c.metrics = newClientMetrics(opts.metrics, addr, c.pendingLen)
	return c, nil
}

// Addr returns the server address the client connects to.
func (c *Client) Addr() string {
	return c.addr
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UsedTube returns the tube last selected with Use on this connection.
func (c *Client) UsedTube() string {
	return c.sel.Used()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) pendingLen() int {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return 0
	}
	return s.pending.Len()
}

// connect runs the connect loop: dial, and on failure wait and try again with
// a doubling delay. Each call starts the backoff from the configured initial
// delay, so a connection that was stable for a long time does not inherit a
// long wait from an earlier outage.
func (c *Client) connect(ctx context.Context) error {
	b := newBackoff(c.opts.initialDelay, c.opts.maxDelay)
	for {
		if c.ctx.Err() != nil || !c.reconnect.Load() {
			c.setState(Disconnected)
			return ErrClosed
		}

		c.setState(Connecting)
		err := c.attempt(ctx)
		if err == nil {
			return nil
		}
		c.metrics.connectFailures.Inc()

		if c.opts.initialDelay < 0 {
			c.setState(Disconnected)
			return err
		}

		wait := b.Next()
		c.logger.Warn("can't connect to beanstalkd", "addr", c.addr, "error", err, "retry_in", wait)
		if err := c.sleep(ctx, wait); err != nil {
			c.setState(Disconnected)
			return err
		}
	}
}

// attempt makes one connection attempt and, when state replay is enabled,
// restores the tube selection before the session is published as Connected.
func (c *Client) attempt(ctx context.Context) error {
	conn, err := c.opts.dial(ctx, "tcp", c.addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.addr)
	}

	s := newSession(conn, c.opts)
	s.onFrame = func(f *Frame) { c.onFrame(s, f) }

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.sess = s
	c.wg.Add(1)
	c.mu.Unlock()

	go c.serve(s)

	if c.opts.replayState {
		if err := c.restore(ctx, s); err != nil {
			s.close()
			<-s.done
			return err
		}
	} else {
		c.sel.reset()
	}

	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return ErrConnectionLost
	}
	s.established = true
	c.state = Connected
	c.mu.Unlock()

	c.metrics.connects.Inc()
	c.logger.Info("connected to beanstalkd", "addr", c.addr)
	return nil
}

// restore replays the tube selection on a fresh session.
func (c *Client) restore(ctx context.Context, s *session) error {
	for _, req := range c.sel.replay() {
		p, err := c.issue(req, s)
		if err != nil {
			return err
		}
		if _, err := c.wait(ctx, p); err != nil {
			return errors.Wrapf(err, "replay %s", req.verb)
		}
	}
	return nil
}

// serve runs the session and tears it down when it ends: outstanding commands
// are completed and, if the session was live and reconnecting is still
// wanted, a new connect loop starts in the background.
func (c *Client) serve(s *session) {
	defer c.wg.Done()

	err := s.run()

	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	reconnect := s.established && c.reconnect.Load() && c.ctx.Err() == nil
	if s.established {
		if reconnect {
			c.state = Connecting
		} else {
			c.state = Disconnected
		}
	}
	c.mu.Unlock()

	lost := s.pending.failAll(ErrConnectionLost)
	c.metrics.lostRequests.Add(lost)
	close(s.done)

	if !s.established {
		return
	}
	c.logger.Info("disconnected from beanstalkd", "addr", c.addr, "error", err, "failed_requests", lost)

	if !reconnect {
		return
	}
	c.metrics.reconnects.Inc()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.connect(c.ctx); err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			c.logger.Error("reconnect to beanstalkd failed", "addr", c.addr, "error", err)
		}
	}()
}

// onFrame runs on the read loop for every complete reply.
func (c *Client) onFrame(s *session, f *Frame) {
	c.metrics.frames.Inc()
	p := s.pending.resolve(f)
	if p == nil {
		c.logger.Warn("dropping reply", "addr", c.addr, "tag", f.Tag, "error", ErrUnexpectedFrame)
		return
	}
	if f.Tag != p.expect {
		c.metrics.protocolErrors.Inc()
	}
	c.logger.Debug("reply", "verb", p.verb, "tag", f.Tag, "args", f.Args, "body_bytes", len(f.Body))
}

// issue queues a reply slot and the request bytes in one step. With via set,
// the request goes to that session even before it is marked Connected.
func (c *Client) issue(req request, via *session) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess
	switch {
	case via != nil && s != via:
		return nil, ErrConnectionLost
	case via == nil && c.ctx.Err() != nil:
		return nil, ErrClosed
	case via == nil && (s == nil || c.state != Connected):
		return nil, ErrNotConnected
	}

	p := s.pending.push(req.verb, req.expect)
	s.send(req.wire)
	c.metrics.command(req.verb)
	return p, nil
}

// wait blocks until the reply for p arrives or ctx is done. Giving up leaves
// the slot queued, so later replies still line up with their requests.
func (c *Client) wait(ctx context.Context, p *pending) (*Frame, error) {
	select {
	case r := <-p.done:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// roundTrip issues req and waits for its reply.
func (c *Client) roundTrip(ctx context.Context, req request) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := c.issue(req, nil)
	if err != nil {
		return nil, errors.Wrap(err, req.verb)
	}

	f, err := c.wait(ctx, p)
	if err != nil {
		return nil, err
	}
	c.sel.observe(req.verb, req.args)
	return f, nil
}

// Do sends a command from the generic table with args joined by spaces. The
// returned frame is nil for quit, which gets no reply.
func (c *Client) Do(ctx context.Context, verb string, args ...string) (*Frame, error) {
	cmd, ok := commands[verb]
	if !ok {
		return nil, errors.Wrap(ErrUnknownCommand, verb)
	}
	return c.roundTrip(ctx, encodeGeneric(cmd, args...))
}

// Disconnect stops reconnecting, sends quit and closes the socket. The
// reconnect flag is cleared first so the close path does not start a new
// connect loop. ctx bounds the wait for the server to hang up.
func (c *Client) Disconnect(ctx context.Context) error {
	c.reconnect.Store(false)

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	var err error
	if s != nil {
		p, ierr := c.issue(encodeGeneric(commands["quit"]), s)
		c.mu.Lock()
		if c.sess == s {
			c.state = Closing
		}
		c.mu.Unlock()
		if ierr == nil {
			_, err = c.wait(ctx, p)
		}
		s.close()
		<-s.done
	}

	c.cancel()

	// A background connect loop may have published a session before the
	// cancel; no new one can appear after it.
	c.mu.Lock()
	late := c.sess
	c.mu.Unlock()
	if late != nil {
		late.close()
	}

	c.wg.Wait()
	c.setState(Disconnected)
	return err
}

// Close disconnects, waiting at most the configured close timeout for the
// server to hang up.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.closeTimeout)
	defer cancel()

	err := c.Disconnect(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
