package main

import (
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Work with the submission ledger",
	Long: `The submission ledger records one-off code submissions without the
store's dedup, voting, or evolution machinery. Entries accumulate usage
counts and can be pruned below a coherency floor.`,
}

var historyAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a submission",
	RunE:  runHistoryAdd,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List submissions, newest first",
	RunE:  runHistoryList,
}

var historyUsageCmd = &cobra.Command{
	Use:   "usage <id>",
	Short: "Record a usage outcome for a submission",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryUsage,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete low-coherency submissions",
	RunE:  runHistoryPrune,
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the ledger",
	RunE:  runHistorySummary,
}

func init() {
	af := historyAddCmd.Flags()
	af.String("file", "", "code file path (default: stdin)")
	af.String("language", "", "submission language (required)")
	af.String("description", "", "what the code does")
	af.String("tags", "", "comma-separated tags")
	_ = historyAddCmd.MarkFlagRequired("language")

	lf := historyListCmd.Flags()
	lf.String("language", "", "filter by language")
	lf.Int("limit", 0, "maximum number of results")

	historyUsageCmd.Flags().Bool("succeeded", false, "the use succeeded")
	historyUsageCmd.Flags().Bool("failed", false, "the use failed")

	historyPruneCmd.Flags().Float64("min-coherency", 0, "prune below this coherency (default: configured generate threshold)")

	historyCmd.AddCommand(historyAddCmd, historyListCmd, historyUsageCmd, historyPruneCmd, historySummaryCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryAdd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, _ := cmd.Flags().GetString("file")
	language, _ := cmd.Flags().GetString("language")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")

	code, err := readCode(file)
	if err != nil {
		return err
	}

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	sub, err := h.Add(ctx, history.AddInput{
		Description: description,
		Code:        code,
		Language:    language,
		Tags:        splitAndTrim(tags),
	})
	if err != nil {
		return eris.Wrap(err, "history add")
	}

	fmt.Printf("Submission %s recorded (coherency %.2f)\n", sub.ID, sub.Coherency)
	return nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	language, _ := cmd.Flags().GetString("language")
	limit, _ := cmd.Flags().GetInt("limit")

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	subs, err := h.GetAll(ctx, history.Filters{Language: language, Limit: limit})
	if err != nil {
		return eris.Wrap(err, "history list")
	}
	if len(subs) == 0 {
		fmt.Println("No submissions.")
		return nil
	}

	fmt.Printf("%-38s %-10s %9s %7s %-19s %s\n", "ID", "Language", "Coherency", "Usage", "Created", "Description")
	fmt.Println(strings.Repeat("-", 110))
	for _, s := range subs {
		desc := s.Description
		if len(desc) > 30 {
			desc = desc[:27] + "..."
		}
		fmt.Printf("%-38s %-10s %9.2f %7d %-19s %s\n",
			s.ID, s.Language, s.Coherency, s.UsageCount, s.CreatedAt.Format("2006-01-02 15:04:05"), desc)
	}
	fmt.Printf("\n%d submission(s)\n", len(subs))
	return nil
}

func runHistoryUsage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	succeeded, _ := cmd.Flags().GetBool("succeeded")
	failed, _ := cmd.Flags().GetBool("failed")
	if succeeded == failed {
		return eris.New("history usage: exactly one of --succeeded or --failed is required")
	}

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	if err := h.RecordUsage(ctx, args[0], succeeded); err != nil {
		return eris.Wrap(err, "history usage")
	}
	fmt.Println("Usage recorded.")
	return nil
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minCoherency, _ := cmd.Flags().GetFloat64("min-coherency")
	if minCoherency == 0 {
		minCoherency = cfg.Engine.GenerateThreshold
	}

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	pruned, err := h.Prune(ctx, minCoherency)
	if err != nil {
		return eris.Wrap(err, "history prune")
	}
	fmt.Printf("Pruned %d submission(s) below coherency %.2f\n", pruned, minCoherency)
	return nil
}

func runHistorySummary(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := openHistory(ctx)
	if err != nil {
		return err
	}
	defer h.Close() //nolint:errcheck

	sum, err := h.Summarize(ctx)
	if err != nil {
		return eris.Wrap(err, "history summary")
	}

	fmt.Printf("Submissions:   %d\n", sum.Count)
	fmt.Printf("Avg coherency: %.2f\n", sum.AvgCoherency)
	if len(sum.Languages) > 0 {
		languages := make([]string, 0, len(sum.Languages))
		for lang := range sum.Languages {
			languages = append(languages, lang)
		}
		sort.Strings(languages)
		fmt.Println("Languages:")
		for _, lang := range languages {
			fmt.Printf("  %-12s %d\n", lang, sum.Languages[lang])
		}
	}
	return nil
}
