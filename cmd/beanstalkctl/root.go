package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Zereker/beanstalk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.1.0"
)

var (
	client *beanstalk.Client
	cancel context.CancelFunc

	rootCmd = &cobra.Command{
		Use:   "beanstalkctl",
		Short: "beanstalkd command line client",
		Long: fmt.Sprintf(`beanstalkctl (v%s)

Issue beanstalkd commands from the shell. Every flag can also be set
through a BEANSTALK_* environment variable or a .env file.`, Version),
		SilenceUsage:       true,
		PersistentPreRunE:  connect,
		PersistentPostRunE: disconnect,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of beanstalkctl",
		// Overrides the root hooks: no connection needed.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("beanstalkctl v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	setupClientFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
	addCommands(rootCmd)
}

// connect dials the server before a subcommand runs.
func connect(cmd *cobra.Command, _ []string) error {
	if err := bindCommandFlags(cmd); err != nil {
		return err
	}

	opts, err := clientOptions()
	if err != nil {
		return err
	}

	ctx, cancelFunc := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	cmd.SetContext(ctx)
	cancel = cancelFunc

	client, err = beanstalk.Dial(ctx, viper.GetString("addr"), opts...)
	return err
}

// disconnect sends quit and optionally dumps the client metrics.
func disconnect(*cobra.Command, []string) error {
	defer cancel()

	if viper.GetBool("metrics") {
		client.WriteMetrics(os.Stderr)
	}
	return client.Close()
}
