package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sortline/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Recent int
}

// StatsReport is the stats command's JSON payload.
type StatsReport struct {
	Snapshot *store.StatsSnapshot `json:"snapshot,omitempty"`
	Lanes    []store.LaneCount    `json:"lanes"`
	Total    int64                `json:"total_decisions"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <database>",
		Short: "Report sorting statistics from the log",
		Long: `Report sorting statistics from a line's log database.

Shows the latest run statistics snapshot, per-lane decision totals, and
optionally the most recent decisions. Safe to run while the daemon is
writing; the log uses WAL mode.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Recent, "recent", 0, "also list the N most recent decisions")

	return cmd
}

func runStats(opts *StatsOptions, dbPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(dbPath)
	if err != nil {
		_ = formatter.Error("C001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open sorting log", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report := StatsReport{}

	snap, err := st.LatestStats(ctx)
	switch {
	case errors.Is(err, store.ErrNoStats):
		// A fresh log has decisions but no snapshot yet.
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to read stats", err)
	default:
		report.Snapshot = &snap
	}

	if report.Lanes, err = st.LaneTotals(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read lane totals", err)
	}
	if report.Total, err = st.CountDecisions(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to count decisions", err)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	printStatsReport(formatter, report)

	if opts.Recent > 0 {
		decisions, err := st.RecentDecisions(ctx, opts.Recent)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read decisions", err)
		}
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Recent decisions:")
		for _, d := range decisions {
			fmt.Fprintf(formatter.Writer, "  %s  ch=%s pos=%d weight=%d lane=%d cause=%s\n",
				d.Time.Format("15:04:05.000"), d.Channel, d.Position, d.Weight, d.Lane, d.Cause)
		}
	}
	return nil
}

func printStatsReport(formatter *OutputFormatter, report StatsReport) {
	w := formatter.Writer
	fmt.Fprintf(w, "Total decisions: %d\n", report.Total)

	if len(report.Lanes) > 0 {
		fmt.Fprintln(w, "Per lane:")
		for _, lc := range report.Lanes {
			fmt.Fprintf(w, "  lane %-3d %d\n", lc.Lane, lc.Count)
		}
	}

	if report.Snapshot == nil {
		fmt.Fprintln(w, "No run statistics recorded yet.")
		return
	}
	s := report.Snapshot.Stats
	fmt.Fprintf(w, "Last snapshot (%s):\n", report.Snapshot.TakenAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  cycles           %d\n", s.Cycles)
	fmt.Fprintf(w, "  weight sorted    %d\n", s.WeightSorted)
	fmt.Fprintf(w, "  template sorted  %d\n", s.TemplateSorted)
	fmt.Fprintf(w, "  overrides        %d (missed %d)\n", s.OverrideSorted, s.MissedOverrides)
	fmt.Fprintf(w, "  rejected         %d\n", s.Rejected)
	fmt.Fprintf(w, "  alignment misses %d\n", s.AlignmentMisses)
	fmt.Fprintf(w, "  batch writes     %d (failed %d)\n", s.BatchWrites, s.WriteFailures)
	fmt.Fprintf(w, "  read failures    %d\n", s.ReadFailures)
	fmt.Fprintf(w, "  dropped events   %d\n", s.DroppedEvents)
}
