package beanstalk

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

func TestDecoderOption(t *testing.T) {
	opt := DecoderOption(YAMLDecoder)

	var opts options
	opt(&opts)

	if opts.decoder == nil {
		t.Error("decoder not set")
	}
}

func TestBufferSizeOption(t *testing.T) {
	opt := BufferSizeOption(100)

	var opts options
	opt(&opts)

	if opts.bufferSize != 100 {
		t.Errorf("bufferSize = %d, want 100", opts.bufferSize)
	}
}

func TestReadBufferSizeOption(t *testing.T) {
	opt := ReadBufferSizeOption(512)

	var opts options
	opt(&opts)

	if opts.readBufferSize != 512 {
		t.Errorf("readBufferSize = %d, want 512", opts.readBufferSize)
	}
}

func TestMaxFrameSizeOption(t *testing.T) {
	opt := MaxFrameSizeOption(1 << 10)

	var opts options
	opt(&opts)

	if opts.maxFrameSize != 1<<10 {
		t.Errorf("maxFrameSize = %d, want %d", opts.maxFrameSize, 1<<10)
	}
}

func TestWriteTimeoutOption(t *testing.T) {
	opt := WriteTimeoutOption(time.Second)

	var opts options
	opt(&opts)

	if opts.writeTimeout != time.Second {
		t.Errorf("writeTimeout = %v, want 1s", opts.writeTimeout)
	}
}

func TestRetryDelayOption(t *testing.T) {
	opt := RetryDelayOption(time.Second, time.Minute)

	var opts options
	opt(&opts)

	if opts.initialDelay != time.Second || opts.maxDelay != time.Minute {
		t.Errorf("delays = %v/%v, want 1s/1m", opts.initialDelay, opts.maxDelay)
	}
}

func TestNoRetryOption(t *testing.T) {
	opts := newOptions([]Option{NoRetryOption()})

	if opts.initialDelay >= 0 {
		t.Errorf("initialDelay = %v, want negative", opts.initialDelay)
	}
	if err := checkOptions(&opts); err != nil {
		t.Errorf("checkOptions failed: %v", err)
	}
}

func TestDialerOption(t *testing.T) {
	called := false
	dial := func(ctx context.Context, network, addr string) (net.Conn, error) {
		called = true
		return nil, errors.New("no")
	}

	var opts options
	DialerOption(dial)(&opts)

	if opts.dial == nil {
		t.Fatal("dial is nil")
	}
	_, _ = opts.dial(context.Background(), "tcp", "x")
	if !called {
		t.Error("dialer not called")
	}
}

func TestTimeoutOptions(t *testing.T) {
	var opts options
	DialTimeoutOption(3 * time.Second)(&opts)
	CloseTimeoutOption(2 * time.Second)(&opts)

	if opts.dialTimeout != 3*time.Second {
		t.Errorf("dialTimeout = %v, want 3s", opts.dialTimeout)
	}
	if opts.closeTimeout != 2*time.Second {
		t.Errorf("closeTimeout = %v, want 2s", opts.closeTimeout)
	}
}

func TestReplayStateOption(t *testing.T) {
	var opts options
	ReplayStateOption(true)(&opts)

	if !opts.replayState {
		t.Error("replayState not set")
	}
}

func TestMetricsOption(t *testing.T) {
	set := metrics.NewSet()

	var opts options
	MetricsOption(set)(&opts)

	if opts.metrics != set {
		t.Error("metrics set not set")
	}
}

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := newOptions([]Option{LoggerOption(nil)})
	if err := checkOptions(&opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.initialDelay != defaultInitialDelay {
		t.Errorf("initialDelay = %v, want %v", opts.initialDelay, defaultInitialDelay)
	}
	if opts.maxDelay != defaultMaxDelay {
		t.Errorf("maxDelay = %v, want %v", opts.maxDelay, defaultMaxDelay)
	}
	if opts.bufferSize != defaultBufferSize {
		t.Errorf("bufferSize = %d, want %d", opts.bufferSize, defaultBufferSize)
	}
	if opts.readBufferSize != defaultReadBufferSize {
		t.Errorf("readBufferSize = %d, want %d", opts.readBufferSize, defaultReadBufferSize)
	}
	if opts.closeTimeout != defaultCloseTimeout {
		t.Errorf("closeTimeout = %v, want %v", opts.closeTimeout, defaultCloseTimeout)
	}
	if opts.maxFrameSize != defaultMaxFrameSize {
		t.Errorf("maxFrameSize = %d, want %d", opts.maxFrameSize, defaultMaxFrameSize)
	}
	if opts.writeTimeout != 0 {
		t.Errorf("writeTimeout = %v, want 0", opts.writeTimeout)
	}
	if opts.logger == nil {
		t.Error("nil logger was not replaced")
	}
	if opts.dial == nil {
		t.Error("dial not set")
	}
	if opts.metrics == nil {
		t.Error("metrics not set")
	}
	if opts.replayState {
		t.Error("replayState on by default")
	}
}

func TestCheckOptions_InvalidRetryDelay(t *testing.T) {
	opts := newOptions([]Option{RetryDelayOption(time.Second, time.Millisecond)})

	err := checkOptions(&opts)
	if !errors.Is(err, ErrInvalidRetryDelay) {
		t.Errorf("err = %v, want ErrInvalidRetryDelay", err)
	}
}

func TestCheckOptions_ZeroRetryDelay(t *testing.T) {
	opts := newOptions([]Option{RetryDelayOption(0, 0)})

	err := checkOptions(&opts)
	if !errors.Is(err, ErrInvalidRetryDelay) {
		t.Errorf("err = %v, want ErrInvalidRetryDelay", err)
	}
}

func TestOptions_MultipleOptions(t *testing.T) {
	logger := &mockLogger{}
	set := metrics.NewSet()

	opts := newOptions([]Option{
		DecoderOption(YAMLDecoder),
		RetryDelayOption(20*time.Millisecond, time.Second),
		BufferSizeOption(50),
		ReplayStateOption(true),
		MetricsOption(set),
		LoggerOption(logger),
	})

	if opts.decoder == nil {
		t.Error("decoder not set")
	}
	if opts.initialDelay != 20*time.Millisecond || opts.maxDelay != time.Second {
		t.Errorf("delays = %v/%v", opts.initialDelay, opts.maxDelay)
	}
	if opts.bufferSize != 50 {
		t.Errorf("bufferSize = %d, want 50", opts.bufferSize)
	}
	if !opts.replayState {
		t.Error("replayState not set")
	}
	if opts.metrics != set {
		t.Error("metrics not set")
	}
	if opts.logger != logger {
		t.Error("logger not set")
	}
}
