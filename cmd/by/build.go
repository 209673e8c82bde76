package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/dashboard"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build and queue commands",
	}

	cmd.AddCommand(newBuildListCmd())
	cmd.AddCommand(newBuildShowCmd())
	cmd.AddCommand(newBuildCancelCmd())
	cmd.AddCommand(newBuildRetryCmd())
	cmd.AddCommand(newBuildStatusCmd())
	cmd.AddCommand(newBuildScoreCmd())
	cmd.AddCommand(newBuildRescoreCmd())
	cmd.AddCommand(newBuildEstimateCmd())
	return cmd
}

func newBuildListCmd() *cobra.Command {
	var (
		configPath string
		filter     dashboard.QueueFilter
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and running builds",
		Long:  "Lists the build queue: running jobs first, then waiting jobs in dispatch order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			rows, err := dashboard.QueueRows(gormDB, filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "Queue is empty.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tBUILD\tSOURCE\tVERSION\tARCHIVE\tARCH\tSCORE\tSTATUS\tBUILDER")
			for _, r := range rows {
				score := strconv.Itoa(r.Score)
				if r.Manual {
					score += "*"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.QueueID, r.BuildID, truncate(r.Source, 30), truncate(r.Version, 20),
					r.Archive, r.ArchTag, score, r.JobStatus, dash(r.Builder))
			}
			w.Flush()
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by job status (WAITING, RUNNING)")
	cmd.Flags().StringVar(&filter.Processor, "processor", "", "filter by processor")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum rows to show (0 for all)")
	return cmd
}

func newBuildShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show build details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			d, err := dashboard.GetBuildDetail(gormDB, id)
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("build %d not found", id)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Build:      %d\n", d.ID)
			fmt.Fprintf(out, "Source:     %s %s\n", d.Source, d.Version)
			fmt.Fprintf(out, "Target:     %s %s/%s (%s)\n", d.Archive, d.Series, d.ArchTag, d.Pocket)
			fmt.Fprintf(out, "Status:     %s\n", d.Status)
			fmt.Fprintf(out, "Builder:    %s\n", dash(d.Builder))
			fmt.Fprintf(out, "Cookie:     %s\n", dash(d.DispatchCookie))
			fmt.Fprintf(out, "Failures:   %d\n", d.FailureCount)
			fmt.Fprintf(out, "Created:    %s\n", formatTime(&d.DateCreated))
			fmt.Fprintf(out, "Dispatched: %s\n", formatTime(d.DateFirstDispatched))
			fmt.Fprintf(out, "Started:    %s\n", formatTime(d.DateStarted))
			fmt.Fprintf(out, "Finished:   %s\n", formatTime(d.DateFinished))
			if d.Queue != nil {
				manual := ""
				if d.Queue.Manual {
					manual = " (manual)"
				}
				fmt.Fprintf(out, "Queue:      %d, %s, score %d%s\n", d.Queue.ID, d.Queue.JobStatus, d.Queue.Score, manual)
				if d.Queue.Logtail != "" {
					fmt.Fprintf(out, "\nLogtail:\n%s\n", d.Queue.Logtail)
				}
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func newBuildCancelCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cancel <build-id>",
		Short: "Cancel a build",
		Long:  "Cancels a waiting build at once; a running build is marked CANCELLING until its builder reports.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			status, err := buildqueue.Cancel(gormDB, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %d is %s\n", id, status)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBuildRetryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "retry <build-id>",
		Short: "Queue a failed or cancelled build again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			entry, err := buildqueue.Retry(gormDB, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %d queued again (queue entry %d, score %d)\n", id, entry.ID, entry.LastScore)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBuildStatusCmd() *cobra.Command {
	var (
		configPath string
		cookie     string
		logtail    string
	)

	cmd := &cobra.Command{
		Use:   "status <build-id> <status>",
		Short: "Record a status reported by a builder",
		Long: `Records progress (BUILDING, UPLOADING) or a final status (FULLYBUILT,
FAILEDTOBUILD, ...) for a running build. Final statuses remove the build
from the queue. --cookie must match the cookie issued at dispatch (see
"by build show").`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := buildqueue.UpdateStatus(gormDB, id, cookie, args[1], logtail); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Build %d reported %s\n", id, args[1])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&cookie, "cookie", "", "dispatch cookie of the build (required)")
	cmd.Flags().StringVar(&logtail, "logtail", "", "latest build log output")
	cmd.MarkFlagRequired("cookie")
	return cmd
}

func newBuildScoreCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "score <queue-id> <score>",
		Short: "Pin a queue entry's score",
		Long:  "Sets a manual score. Periodic rescoring leaves manually scored entries alone.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid score %q", args[1])
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := buildqueue.ManualScore(gormDB, id, score); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queue entry %d scored %d\n", id, score)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBuildRescoreCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rescore [queue-id]",
		Short: "Recompute scores",
		Long:  "Recomputes the score of one queue entry, or of every waiting entry when no ID is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				changed, err := buildqueue.RescoreAll(gormDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rescored queue: %d scores changed\n", changed)
				return nil
			}

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			score, err := buildqueue.Rescore(gormDB, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Queue entry %d scored %d\n", id, score)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBuildEstimateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "estimate <queue-id>",
		Short: "Estimate when a waiting build will start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			now := time.Now()
			at, err := buildqueue.EstimatedStartTime(gormDB, id, now)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if at == nil {
				fmt.Fprintf(out, "Queue entry %d: no builder can run it\n", id)
				return nil
			}
			fmt.Fprintf(out, "Queue entry %d: estimated start %s (in %s)\n",
				id, formatTime(at), at.Sub(now).Round(time.Second))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
