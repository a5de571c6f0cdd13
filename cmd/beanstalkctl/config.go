package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Zereker/beanstalk"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// wrap is the number of characters to wrap the help text at
	wrap int = 50
)

// wrapString wraps a string at wrap characters
func wrapString(text string) string {
	var lines []string
	var line strings.Builder

	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// setupClientFlags adds the connection flags shared by every command.
func setupClientFlags(cmd *cobra.Command) {
	key := "addr"
	cmd.PersistentFlags().String(key, "localhost:11300", wrapString("Address of the beanstalkd server"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, 10*time.Second, wrapString("How long a command, including connecting, may take"))

	key = "retry-initial"
	cmd.PersistentFlags().Duration(key, 10*time.Millisecond, wrapString("First wait after a failed connection attempt; negative disables retrying"))

	key = "retry-max"
	cmd.PersistentFlags().Duration(key, 5*time.Second, wrapString("Upper bound for the wait between connection attempts"))

	key = "write-timeout"
	cmd.PersistentFlags().Duration(key, 0, wrapString("Drop the connection when a write stalls this long; 0 disables"))

	key = "max-frame-size"
	cmd.PersistentFlags().Int(key, 16<<20, wrapString("Largest reply body accepted from the server, in bytes"))

	key = "yaml"
	cmd.PersistentFlags().Bool(key, true, wrapString("Decode stats and tube listings as YAML"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, wrapString("Print client metrics to stderr when the command finishes"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", wrapString("Log level (debug, info, warn, error)"))
}

// initConfig loads .env files and maps BEANSTALK_* variables onto flags.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("beanstalk")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindCommandFlags binds a command's flags to viper
func bindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", viper.GetString("log-level"))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// clientOptions turns the bound configuration into client options.
func clientOptions() ([]beanstalk.Option, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	opts := []beanstalk.Option{
		beanstalk.LoggerOption(logger),
		beanstalk.RetryDelayOption(viper.GetDuration("retry-initial"), viper.GetDuration("retry-max")),
		beanstalk.DialTimeoutOption(viper.GetDuration("timeout")),
		beanstalk.WriteTimeoutOption(viper.GetDuration("write-timeout")),
		beanstalk.MaxFrameSizeOption(viper.GetInt("max-frame-size")),
	}
	if viper.GetBool("yaml") {
		opts = append(opts, beanstalk.DecoderOption(beanstalk.YAMLDecoder))
	}
	return opts, nil
}
