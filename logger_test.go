package beanstalk

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"
)

func TestLogger_Interface(t *testing.T) {
	// Verify that *slog.Logger implements our Logger interface
	var _ Logger = slog.Default()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()

	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}

	// Verify it's the slog default
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestDefaultLogger_Methods(t *testing.T) {
	logger := defaultLogger()

	// These should not panic - just verify they can be called
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

// mockLogger for testing Logger interface
type mockLogger struct {
	debugCalled bool
	infoCalled  bool
	warnCalled  bool
	errorCalled bool
	lastMsg     string
	lastArgs    []any
}

func (l *mockLogger) Debug(msg string, args ...any) {
	l.debugCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Info(msg string, args ...any) {
	l.infoCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Warn(msg string, args ...any) {
	l.warnCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func (l *mockLogger) Error(msg string, args ...any) {
	l.errorCalled = true
	l.lastMsg = msg
	l.lastArgs = args
}

func TestDiscardLogger(t *testing.T) {
	logger := discardLogger()
	if logger == nil {
		t.Fatal("discardLogger returned nil")
	}
	logger.Error("dropped", "key", "value")
}

func TestLoggerOption_Nil(t *testing.T) {
	opts := newOptions([]Option{LoggerOption(nil)})
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}
	if opts.logger == nil {
		t.Fatal("nil logger was not replaced")
	}
	if opts.logger == slog.Default() {
		t.Error("nil logger replaced by the default logger, want a silent one")
	}
}

func TestClient_LogsConnectFailures(t *testing.T) {
	logger := &mockLogger{}
	errRefused := errors.New("connection refused")

	c, err := newClient("127.0.0.1:1",
		LoggerOption(logger),
		DialerOption(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nil, errRefused
		}),
	)
	if err != nil {
		t.Fatalf("newClient failed: %v", err)
	}
	defer c.cancel()
	c.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	if err := c.connect(context.Background()); !errors.Is(err, context.Canceled) {
		t.Fatalf("connect err = %v, want context.Canceled", err)
	}
	if !logger.warnCalled {
		t.Fatal("Warn not called")
	}
	if logger.lastMsg != "can't connect to beanstalkd" {
		t.Errorf("lastMsg = %q", logger.lastMsg)
	}
	if logger.infoCalled {
		t.Error("Info called without a connection")
	}
}
