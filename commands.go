package beanstalk

import (
	"context"
	"strconv"
	"time"
)

// Use selects the tube that Put adds jobs to. It returns the tube name the
// server acknowledged.
func (c *Client) Use(ctx context.Context, tube string) (string, error) {
	f, err := c.Do(ctx, "use", tube)
	if err != nil {
		return "", err
	}
	return firstArg(f), nil
}

// ListTubeUsed returns the tube currently used by this connection.
func (c *Client) ListTubeUsed(ctx context.Context) (string, error) {
	f, err := c.Do(ctx, "list-tube-used")
	if err != nil {
		return "", err
	}
	return firstArg(f), nil
}

// Watch adds tube to the watch list and returns how many tubes are watched.
func (c *Client) Watch(ctx context.Context, tube string) (int, error) {
	f, err := c.Do(ctx, "watch", tube)
	if err != nil {
		return 0, err
	}
	return parseCount(f)
}

// Ignore removes tube from the watch list and returns how many tubes remain.
// The server refuses to drop the last tube with NOT_IGNORED.
func (c *Client) Ignore(ctx context.Context, tube string) (int, error) {
	f, err := c.Do(ctx, "ignore", tube)
	if err != nil {
		return 0, err
	}
	return parseCount(f)
}

// Put adds a job with the given body to the used tube and returns its id.
// The body may contain arbitrary bytes, including "\r\n".
func (c *Client) Put(ctx context.Context, body []byte, opts ...JobOption) (uint64, error) {
	f, err := c.roundTrip(ctx, encodePut(body, newJobParams(opts)))
	if err != nil {
		return 0, err
	}
	return parseID(firstArg(f))
}

// Reserve waits for a job on any watched tube. There is no server side
// timeout; ctx only abandons the wait.
func (c *Client) Reserve(ctx context.Context) (*Job, error) {
	return c.reserve(ctx, encodeReserve(-1))
}

// ReserveWithTimeout waits at most timeout (whole seconds) for a job. When
// none arrives the error matches ErrTimedOut; ErrDeadlineSoon means a job
// reserved by this connection is about to exceed its ttr.
func (c *Client) ReserveWithTimeout(ctx context.Context, timeout time.Duration) (*Job, error) {
	if timeout < 0 {
		timeout = 0
	}
	return c.reserve(ctx, encodeReserve(timeout))
}

// ReserveJob reserves the job with the given id, wherever it is.
func (c *Client) ReserveJob(ctx context.Context, id uint64) (*Job, error) {
	return c.reserve(ctx, encodeGeneric(commands["reserve-job"], formatUint(id)))
}

func (c *Client) reserve(ctx context.Context, req request) (*Job, error) {
	f, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	return jobFromFrame(f)
}

// Delete removes a job.
func (c *Client) Delete(ctx context.Context, id uint64) error {
	_, err := c.Do(ctx, "delete", formatUint(id))
	return err
}

// Touch asks for more time to work on a reserved job.
func (c *Client) Touch(ctx context.Context, id uint64) error {
	_, err := c.Do(ctx, "touch", formatUint(id))
	return err
}

// Release puts a reserved job back into the ready queue, or the delay queue
// when Delay is given. Priority and Delay are honoured.
func (c *Client) Release(ctx context.Context, id uint64, opts ...JobOption) error {
	_, err := c.roundTrip(ctx, encodeRelease(id, newJobParams(opts)))
	return err
}

// Bury moves a reserved job into the buried list. Only Priority is honoured.
func (c *Client) Bury(ctx context.Context, id uint64, opts ...JobOption) error {
	_, err := c.roundTrip(ctx, encodeBury(id, newJobParams(opts)))
	return err
}

// Kick moves up to bound buried (or, if there are none, delayed) jobs of the
// used tube into the ready queue and returns how many were kicked.
func (c *Client) Kick(ctx context.Context, bound int) (int, error) {
	f, err := c.Do(ctx, "kick", strconv.Itoa(bound))
	if err != nil {
		return 0, err
	}
	return parseCount(f)
}

// KickJob moves a single buried or delayed job into the ready queue.
func (c *Client) KickJob(ctx context.Context, id uint64) error {
	_, err := c.Do(ctx, "kick-job", formatUint(id))
	return err
}

// Peek returns the job with the given id without reserving it.
func (c *Client) Peek(ctx context.Context, id uint64) (*Job, error) {
	return c.peek(ctx, "peek", formatUint(id))
}

// PeekReady returns the next ready job of the used tube.
func (c *Client) PeekReady(ctx context.Context) (*Job, error) {
	return c.peek(ctx, "peek-ready")
}

// PeekDelayed returns the delayed job of the used tube with the shortest delay left.
func (c *Client) PeekDelayed(ctx context.Context) (*Job, error) {
	return c.peek(ctx, "peek-delayed")
}

// PeekBuried returns the next buried job of the used tube.
func (c *Client) PeekBuried(ctx context.Context) (*Job, error) {
	return c.peek(ctx, "peek-buried")
}

func (c *Client) peek(ctx context.Context, verb string, args ...string) (*Job, error) {
	f, err := c.Do(ctx, verb, args...)
	if err != nil {
		return nil, err
	}
	return jobFromFrame(f)
}

// PauseTube stops handing out jobs from tube for delay (whole seconds).
func (c *Client) PauseTube(ctx context.Context, tube string, delay time.Duration) error {
	_, err := c.Do(ctx, "pause-tube", tube, formatSeconds(delay))
	return err
}

// Stats returns server wide statistics.
func (c *Client) Stats(ctx context.Context) (*Document, error) {
	return c.document(ctx, "stats")
}

// StatsTube returns statistics for one tube.
func (c *Client) StatsTube(ctx context.Context, tube string) (*TubeStats, error) {
	doc, err := c.document(ctx, "stats-tube", tube)
	if err != nil {
		return nil, err
	}
	var st TubeStats
	if err := doc.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StatsJob returns statistics for one job.
func (c *Client) StatsJob(ctx context.Context, id uint64) (*JobStats, error) {
	doc, err := c.document(ctx, "stats-job", formatUint(id))
	if err != nil {
		return nil, err
	}
	var st JobStats
	if err := doc.Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListTubes returns the names of all existing tubes.
func (c *Client) ListTubes(ctx context.Context) ([]string, error) {
	return c.list(ctx, "list-tubes")
}

// ListTubesWatched returns the names of the tubes this connection watches.
func (c *Client) ListTubesWatched(ctx context.Context) ([]string, error) {
	return c.list(ctx, "list-tubes-watched")
}

func (c *Client) list(ctx context.Context, verb string) ([]string, error) {
	doc, err := c.document(ctx, verb)
	if err != nil {
		return nil, err
	}
	var tubes []string
	if err := doc.Decode(&tubes); err != nil {
		return nil, err
	}
	return tubes, nil
}

func (c *Client) document(ctx context.Context, verb string, args ...string) (*Document, error) {
	f, err := c.Do(ctx, verb, args...)
	if err != nil {
		return nil, err
	}
	return &Document{Raw: f.Body, Value: f.Doc}, nil
}

// Quit asks the server to close the connection. It returns once the
// connection is gone. Unlike Close it does not stop the client from
// reconnecting.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Do(ctx, "quit")
	return err
}

func firstArg(f *Frame) string {
	if f == nil || len(f.Args) == 0 {
		return ""
	}
	return f.Args[0]
}
