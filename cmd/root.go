package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/history"
	"github.com/codekeep/codekeep/internal/model"
	"github.com/codekeep/codekeep/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "codekeep",
	Short: "Self-curating store of reusable code patterns",
	Long:  "Registers code patterns with coherency scoring, decides whether to pull, evolve, or generate for a request, and curates the store through votes, usage outcomes, and retirement sweeps.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store, store.Options{Tiers: cfg.Tiers, Actor: cfg.Actor})
}

func openHistory(ctx context.Context) (history.History, error) {
	return history.Open(ctx, cfg.Store)
}

// readCode loads pattern code from --file, or from stdin when path is "-"
// or empty and stdin is piped.
func readCode(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", eris.Wrap(err, "cmd: read code from stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "cmd: read code file %s", path)
	}
	return string(data), nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

func printPattern(p *model.Pattern) {
	fmt.Printf("ID:        %s\n", p.ID)
	fmt.Printf("Name:      %s\n", p.Name)
	fmt.Printf("Language:  %s\n", p.Language)
	fmt.Printf("Tier:      %s\n", p.Tier)
	fmt.Printf("Coherency: %.2f\n", p.Coherency)
	fmt.Printf("Version:   %d\n", p.Version)
	if p.PatternType != "" {
		fmt.Printf("Type:      %s\n", p.PatternType)
	}
	if len(p.Tags) > 0 {
		fmt.Printf("Tags:      %s\n", strings.Join(p.Tags, ", "))
	}
	if p.Description != "" {
		fmt.Printf("About:     %s\n", p.Description)
	}
	if p.UsageCount > 0 {
		fmt.Printf("Usage:     %d (%d succeeded)\n", p.UsageCount, p.SuccessCount)
	}
	if p.Upvotes > 0 || p.Downvotes > 0 {
		fmt.Printf("Votes:     +%d / -%d (weighted %.2f)\n", p.Upvotes, p.Downvotes, p.WeightedVoteScore)
	}
	if len(p.Requires) > 0 {
		fmt.Printf("Requires:  %s\n", strings.Join(p.Requires, ", "))
	}
}
