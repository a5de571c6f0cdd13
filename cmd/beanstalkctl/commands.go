package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Zereker/beanstalk"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [body]",
		Short: "Puts a job into the used tube; \"-\" reads the body from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := useTube(cmd); err != nil {
				return err
			}
			body, err := readBody(args[0])
			if err != nil {
				return err
			}
			opts, err := jobOptions(cmd, true)
			if err != nil {
				return err
			}
			id, err := client.Put(cmd.Context(), body, opts...)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	reserveCmd = &cobra.Command{
		Use:   "reserve",
		Short: "Reserves a job from the watched tubes and prints its id and body",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tubes, _ := cmd.Flags().GetStringSlice("watch")
			for _, tube := range tubes {
				if _, err := client.Watch(cmd.Context(), tube); err != nil {
					return err
				}
			}
			if len(tubes) > 0 && !slices.Contains(tubes, beanstalk.DefaultTube) {
				if _, err := client.Ignore(cmd.Context(), beanstalk.DefaultTube); err != nil {
					return err
				}
			}

			timeout, _ := cmd.Flags().GetDuration("reserve-timeout")
			var job *beanstalk.Job
			var err error
			if timeout < 0 {
				job, err = client.Reserve(cmd.Context())
			} else {
				job, err = client.ReserveWithTimeout(cmd.Context(), timeout)
			}
			if err != nil {
				return err
			}
			printJob(job)

			if del, _ := cmd.Flags().GetBool("delete"); del {
				return client.Delete(cmd.Context(), job.ID)
			}
			return nil
		},
	}
	reserveJobCmd = &cobra.Command{
		Use:   "reserve-job [id]",
		Short: "Reserves a job by id",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			job, err := client.ReserveJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		}),
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Deletes a job",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			return client.Delete(cmd.Context(), id)
		}),
	}
	touchCmd = &cobra.Command{
		Use:   "touch [id]",
		Short: "Requests more time for a reserved job",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			return client.Touch(cmd.Context(), id)
		}),
	}
	releaseCmd = &cobra.Command{
		Use:   "release [id]",
		Short: "Releases a reserved job back into the ready queue",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			opts, err := jobOptions(cmd, false)
			if err != nil {
				return err
			}
			return client.Release(cmd.Context(), id, opts...)
		}),
	}
	buryCmd = &cobra.Command{
		Use:   "bury [id]",
		Short: "Buries a reserved job",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			opts, err := jobOptions(cmd, false)
			if err != nil {
				return err
			}
			return client.Bury(cmd.Context(), id, opts...)
		}),
	}
	kickCmd = &cobra.Command{
		Use:   "kick [bound]",
		Short: "Kicks up to bound buried or delayed jobs of the used tube",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bound, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "bound must be a number")
			}
			if err := useTube(cmd); err != nil {
				return err
			}
			n, err := client.Kick(cmd.Context(), bound)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	kickJobCmd = &cobra.Command{
		Use:   "kick-job [id]",
		Short: "Kicks a single buried or delayed job",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			return client.KickJob(cmd.Context(), id)
		}),
	}
	peekCmd = &cobra.Command{
		Use:   "peek [id]",
		Short: "Shows a job without reserving it",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			job, err := client.Peek(cmd.Context(), id)
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		}),
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints server statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(doc.Raw)
			return err
		},
	}
	statsTubeCmd = &cobra.Command{
		Use:   "stats-tube [tube]",
		Short: "Prints statistics for a tube",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client.StatsTube(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("name: %s\nready: %d\nreserved: %d\ndelayed: %d\nburied: %d\ntotal: %d\n",
				st.Name, st.CurrentJobsReady, st.CurrentJobsReserved, st.CurrentJobsDelayed,
				st.CurrentJobsBuried, st.TotalJobs)
			return nil
		},
	}
	statsJobCmd = &cobra.Command{
		Use:   "stats-job [id]",
		Short: "Prints statistics for a job",
		Args:  cobra.ExactArgs(1),
		RunE: withID(func(cmd *cobra.Command, id uint64) error {
			st, err := client.StatsJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("id: %d\ntube: %s\nstate: %s\npri: %d\nage: %d\nttr: %d\ntime-left: %d\n",
				st.ID, st.Tube, st.State, st.Priority, st.Age, st.TTR, st.TimeLeft)
			return nil
		}),
	}
	listTubesCmd = &cobra.Command{
		Use:   "list-tubes",
		Short: "Lists all tubes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tubes, err := client.ListTubes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(tubes, "\n"))
			return nil
		},
	}
	listTubesWatchedCmd = &cobra.Command{
		Use:   "list-tubes-watched",
		Short: "Lists the tubes this connection watches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tubes, err := client.ListTubesWatched(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(tubes, "\n"))
			return nil
		},
	}
	listTubeUsedCmd = &cobra.Command{
		Use:   "list-tube-used",
		Short: "Prints the tube this connection uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tube, err := client.ListTubeUsed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(tube)
			return nil
		},
	}
	pauseTubeCmd = &cobra.Command{
		Use:   "pause-tube [tube] [delay]",
		Short: "Stops handing out jobs from a tube for delay (e.g. 30s)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := time.ParseDuration(args[1])
			if err != nil {
				return errors.Wrap(err, "delay must be a duration")
			}
			return client.PauseTube(cmd.Context(), args[0], delay)
		},
	}
	rawCmd = &cobra.Command{
		Use:   "raw [verb] [args...]",
		Short: "Sends any generic command and prints the reply",
		Long:  "Sends any generic command and prints the reply.\n\nKnown verbs: " + strings.Join(beanstalk.Verbs(), ", "),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := client.Do(cmd.Context(), args[0], args[1:]...)
			if err != nil {
				return err
			}
			if f == nil {
				return nil
			}
			fmt.Println(strings.TrimSpace(f.Tag + " " + strings.Join(f.Args, " ")))
			if f.Body != nil {
				_, err = os.Stdout.Write(f.Body)
			}
			return err
		},
	}
)

var (
	peekReadyCmd   = newPeekCmd("ready", (*beanstalk.Client).PeekReady)
	peekDelayedCmd = newPeekCmd("delayed", (*beanstalk.Client).PeekDelayed)
	peekBuriedCmd  = newPeekCmd("buried", (*beanstalk.Client).PeekBuried)
)

func addCommands(root *cobra.Command) {
	for _, cmd := range []*cobra.Command{putCmd, kickCmd, peekReadyCmd, peekDelayedCmd, peekBuriedCmd} {
		cmd.Flags().String("tube", beanstalk.DefaultTube, wrapString("Tube to use"))
	}
	for _, cmd := range []*cobra.Command{putCmd, releaseCmd, buryCmd} {
		cmd.Flags().Uint32("pri", beanstalk.DefaultPriority, wrapString("Job priority, 0 is the most urgent"))
	}
	for _, cmd := range []*cobra.Command{putCmd, releaseCmd} {
		cmd.Flags().Duration("delay", 0, wrapString("Keep the job out of the ready queue for this long"))
	}
	putCmd.Flags().Duration("ttr", beanstalk.DefaultTTR, wrapString("Time to run once reserved"))

	reserveCmd.Flags().StringSlice("watch", nil, wrapString("Tubes to watch instead of the default tube"))
	reserveCmd.Flags().Duration("reserve-timeout", -1, wrapString("Give up after this long; negative waits forever"))
	reserveCmd.Flags().Bool("delete", false, wrapString("Delete the job after printing it"))

	root.AddCommand(
		putCmd, reserveCmd, reserveJobCmd, deleteCmd, touchCmd, releaseCmd, buryCmd,
		kickCmd, kickJobCmd, peekCmd, peekReadyCmd, peekDelayedCmd, peekBuriedCmd,
		statsCmd, statsTubeCmd, statsJobCmd, listTubesCmd, listTubesWatchedCmd, listTubeUsedCmd,
		pauseTubeCmd, rawCmd,
	)
}

func newPeekCmd(state string, peek func(*beanstalk.Client, context.Context) (*beanstalk.Job, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "peek-" + state,
		Short: "Shows the next " + state + " job of the used tube",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := useTube(cmd); err != nil {
				return err
			}
			job, err := peek(client, cmd.Context())
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		},
	}
}

func withID(run func(cmd *cobra.Command, id uint64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return errors.Wrap(err, "id must be a number")
		}
		return run(cmd, id)
	}
}

func useTube(cmd *cobra.Command) error {
	tube, _ := cmd.Flags().GetString("tube")
	if tube == "" || tube == beanstalk.DefaultTube {
		return nil
	}
	_, err := client.Use(cmd.Context(), tube)
	return err
}

func jobOptions(cmd *cobra.Command, withTTR bool) ([]beanstalk.JobOption, error) {
	var opts []beanstalk.JobOption
	if pri, err := cmd.Flags().GetUint32("pri"); err == nil {
		opts = append(opts, beanstalk.Priority(pri))
	}
	if delay, err := cmd.Flags().GetDuration("delay"); err == nil {
		opts = append(opts, beanstalk.Delay(delay))
	}
	if withTTR {
		ttr, err := cmd.Flags().GetDuration("ttr")
		if err != nil {
			return nil, err
		}
		opts = append(opts, beanstalk.TTR(ttr))
	}
	return opts, nil
}

func readBody(arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, errors.Wrap(err, "read stdin")
	}
	return body, nil
}

func printJob(job *beanstalk.Job) {
	fmt.Println(job.ID)
	_, _ = os.Stdout.Write(job.Body)
	fmt.Println()
}
