package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <pattern-id>",
	Short: "Record a usage outcome for a pattern",
	Long: `Record that a pattern was used, and whether the use succeeded. The
outcome also nudges the reputation of everyone who voted on the pattern:
voters whose direction agreed with the outcome gain, the rest lose.

Examples:
  usage a1b2c3d4e5f60708 --succeeded
  usage a1b2c3d4e5f60708 --failed`,
	Args: cobra.ExactArgs(1),
	RunE: runUsage,
}

var bugCmd = &cobra.Command{
	Use:   "bug <pattern-id>",
	Short: "Report a bug against a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runBug,
}

func init() {
	f := usageCmd.Flags()
	f.Bool("succeeded", false, "the use succeeded")
	f.Bool("failed", false, "the use failed")

	bugCmd.Flags().String("description", "", "what went wrong")

	rootCmd.AddCommand(usageCmd, bugCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	succeeded, _ := cmd.Flags().GetBool("succeeded")
	failed, _ := cmd.Flags().GetBool("failed")
	if succeeded == failed {
		return eris.New("usage: exactly one of --succeeded or --failed is required")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.RecordUsage(ctx, args[0], succeeded); err != nil {
		return eris.Wrap(err, "usage: record")
	}
	if err := st.UpdateVoterReputation(ctx, args[0], succeeded); err != nil {
		return eris.Wrap(err, "usage: update voter reputation")
	}

	p, err := st.Get(ctx, args[0])
	if err != nil {
		return eris.Wrap(err, "usage: reload pattern")
	}
	fmt.Printf("Usage: %d (%d succeeded, success rate %.2f)\n",
		p.UsageCount, p.SuccessCount, p.SuccessRate(cfg.Engine.DefaultSuccessRate))
	return nil
}

func runBug(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	description, _ := cmd.Flags().GetString("description")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.ReportBug(ctx, args[0], description); err != nil {
		return eris.Wrap(err, "bug: report")
	}

	p, err := st.Get(ctx, args[0])
	if err != nil {
		return eris.Wrap(err, "bug: reload pattern")
	}
	fmt.Printf("Bug reports: %d\n", p.BugReports)
	return nil
}
