package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saftbridge/saftbridge/cmd/saftbridge/cli"
	"github.com/saftbridge/saftbridge/internal/app"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger queued jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the default queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		jc, err := newJobsCLI()
		if err != nil {
			return err
		}
		defer jc.Close()
		stats, err := jc.InspectQueue(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Queue:     %s\n", stats.Queue)
		fmt.Fprintf(out, "Pending:   %d\n", stats.Pending)
		fmt.Fprintf(out, "Active:    %d\n", stats.Active)
		fmt.Fprintf(out, "Scheduled: %d\n", stats.Scheduled)
		fmt.Fprintf(out, "Retry:     %d\n", stats.Retry)
		return nil
	},
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <task>",
	Short: "Enqueue a maintenance task by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jc, err := newJobsCLI()
		if err != nil {
			return err
		}
		defer jc.Close()
		info, err := jc.Trigger(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
		return nil
	},
}

var jobsScheduledCmd = &cobra.Command{
	Use:   "scheduled",
	Short: "List scheduled tasks on the default queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		jc, err := newJobsCLI()
		if err != nil {
			return err
		}
		defer jc.Close()
		infos, err := jc.ListScheduled(cmd.Context(), 20)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(infos) == 0 {
			fmt.Fprintln(out, "no scheduled tasks")
			return nil
		}
		for _, info := range infos {
			fmt.Fprintf(out, "%s  %s  next %s\n", info.ID, info.Type, info.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func newJobsCLI() (*cli.JobsCLI, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	return cli.NewJobsCLI(cfg.RedisAddr)
}

func init() {
	jobsCmd.AddCommand(jobsStatsCmd, jobsTriggerCmd, jobsScheduledCmd)
}
