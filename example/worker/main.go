// Command worker runs a producer and a few consumers against one tube.
// Without BEANSTALK_ADDR it starts an in-memory server to talk to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/beanstalk"
	"github.com/Zereker/beanstalk/beanstalktest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	tube    = "echo"
	workers = 3
)

func produce(ctx context.Context, c *beanstalk.Client) error {
	if _, err := c.Use(ctx, tube); err != nil {
		return err
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		id, err := c.Put(ctx, []byte(fmt.Sprintf("job %d", n)), beanstalk.TTR(5*time.Second))
		switch {
		case errors.Is(err, beanstalk.ErrConnectionLost), errors.Is(err, beanstalk.ErrNotConnected):
			slog.Warn("put failed, will retry", "error", err)
			continue
		case err != nil:
			return err
		}
		slog.Info("put", "id", id)
	}
}

// consume reserves jobs one at a time. Each worker owns its client since a
// blocked reserve holds up every command queued behind it.
func consume(ctx context.Context, worker int, c *beanstalk.Client) error {
	if _, err := c.Watch(ctx, tube); err != nil {
		return err
	}
	if _, err := c.Ignore(ctx, beanstalk.DefaultTube); err != nil {
		return err
	}

	for ctx.Err() == nil {
		job, err := c.ReserveWithTimeout(ctx, time.Second)
		switch {
		case errors.Is(err, beanstalk.ErrTimedOut), errors.Is(err, beanstalk.ErrDeadlineSoon):
			continue
		case errors.Is(err, beanstalk.ErrConnectionLost), errors.Is(err, beanstalk.ErrNotConnected):
			slog.Warn("reserve failed, will retry", "worker", worker, "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		slog.Info("reserved", "worker", worker, "id", job.ID, "body", string(job.Body))
		if err := c.Delete(ctx, job.ID); err != nil {
			slog.Error("delete failed", "worker", worker, "id", job.ID, "error", err)
		}
	}
	return nil
}

func run(ctx context.Context, addr string) error {
	opts := []beanstalk.Option{
		beanstalk.ReplayStateOption(true),
		beanstalk.LoggerOption(slog.Default()),
	}

	group, ctx := errgroup.WithContext(ctx)

	producer, err := beanstalk.Dial(ctx, addr, opts...)
	if err != nil {
		return err
	}
	defer producer.Close()
	group.Go(func() error { return produce(ctx, producer) })

	for i := 0; i < workers; i++ {
		c, err := beanstalk.Dial(ctx, addr, opts...)
		if err != nil {
			return err
		}
		defer c.Close()

		worker := i
		group.Go(func() error { return consume(ctx, worker, c) })
	}

	return group.Wait()
}

func main() {
	addr := os.Getenv("BEANSTALK_ADDR")
	if addr == "" {
		srv := beanstalktest.NewServer(beanstalktest.NewFake())
		defer srv.Close()
		addr = srv.Addr()
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	slog.Info("worker start", "addr", addr)
	if err := run(ctx, addr); err != nil {
		slog.Error("worker error", "error", err)
	}
}
