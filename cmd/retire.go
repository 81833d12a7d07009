package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/decision"
)

var retireCmd = &cobra.Command{
	Use:   "retire",
	Short: "Retire low-quality patterns",
	Long: `Sweep the store and delete every pattern whose blended quality score
(coherency weighted 0.6, reliability 0.4) falls below the threshold.
Retired patterns are recorded in the audit log.

Examples:
  retire
  retire --min-score 0.55`,
	RunE: runRetire,
}

func init() {
	retireCmd.Flags().Float64("min-score", 0, "retirement threshold (default: configured)")

	rootCmd.AddCommand(retireCmd)
}

func runRetire(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minScore, _ := cmd.Flags().GetFloat64("min-score")
	if minScore == 0 {
		minScore = cfg.Engine.RetireThreshold
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	result, err := st.Retire(ctx, minScore, decision.ReliabilityFunc(cfg.Engine))
	if err != nil {
		return eris.Wrap(err, "retire")
	}

	zap.L().Info("retire sweep complete",
		zap.Float64("min_score", minScore),
		zap.Int("retired", result.Retired),
		zap.Int("remaining", result.Remaining),
	)
	fmt.Printf("Retired %d pattern(s), %d remaining\n", result.Retired, result.Remaining)
	return nil
}
