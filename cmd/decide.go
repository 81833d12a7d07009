package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/decision"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Decide whether to pull, evolve, or generate",
	Long: `Score every stored pattern against a request and report the decision.

A strong match is pulled as-is, a partial match is flagged for evolution,
and anything below the evolve threshold means generating from scratch.

Examples:
  decide --description "thread-safe LRU cache" --language go --tags cache
  decide --description "parse ISO timestamps" --min-coherency 0.5`,
	RunE: runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.String("description", "", "what is needed (required)")
	f.String("tags", "", "comma-separated tags")
	f.String("language", "", "preferred language")
	f.Float64("min-coherency", 0, "ignore patterns below this coherency")
	_ = decideCmd.MarkFlagRequired("description")

	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	language, _ := cmd.Flags().GetString("language")
	minCoherency, _ := cmd.Flags().GetFloat64("min-coherency")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine := decision.New(st, cfg.Engine)
	result, err := engine.Decide(ctx, decision.Request{
		Description:  description,
		Tags:         splitAndTrim(tags),
		Language:     language,
		MinCoherency: minCoherency,
	})
	if err != nil {
		return eris.Wrap(err, "decide")
	}

	fmt.Printf("Decision:   %s\n", result.Decision)
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	for _, r := range result.Reasoning {
		fmt.Printf("  - %s\n", r)
	}
	if result.Pattern != nil {
		fmt.Println("\n--- Pattern ---")
		printPattern(result.Pattern)
	}
	if len(result.Alternatives) > 0 {
		fmt.Println("\n--- Alternatives ---")
		for _, alt := range result.Alternatives {
			fmt.Printf("  %-18s %-24s composite %.2f\n", alt.Pattern.ID, alt.Pattern.Name, alt.Composite)
		}
	}
	return nil
}
