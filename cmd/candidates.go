package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/model"
	"github.com/codekeep/codekeep/internal/store"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Manage the candidate pool",
	Long: `Candidates are drafts held outside the main store until they prove out.
Promotion is one-way and permanently exempts a candidate from pruning.`,
}

var candidatesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a draft to the candidate pool",
	RunE:  runCandidatesAdd,
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unpromoted candidates",
	RunE:  runCandidatesList,
}

var candidatesPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Promote a candidate",
	Args:  cobra.ExactArgs(1),
	RunE:  runCandidatesPromote,
}

var candidatesPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete low-coherency unpromoted candidates",
	RunE:  runCandidatesPrune,
}

func init() {
	af := candidatesAddCmd.Flags()
	af.String("name", "", "candidate name (required)")
	af.String("file", "", "code file path (default: stdin)")
	af.String("language", "", "candidate language")
	af.String("type", "", "pattern type")
	af.String("description", "", "what the candidate does")
	af.String("tags", "", "comma-separated tags")
	af.String("parent", "", "pattern id this draft derives from")
	af.String("method", "", "generation method: generated, evolved, or manual")
	_ = candidatesAddCmd.MarkFlagRequired("name")

	lf := candidatesListCmd.Flags()
	lf.String("language", "", "filter by language")
	lf.Float64("min-coherency", 0, "minimum coherency score")

	candidatesPruneCmd.Flags().Float64("min-coherency", 0, "prune below this coherency (default: configured generate threshold)")

	candidatesCmd.AddCommand(candidatesAddCmd, candidatesListCmd, candidatesPromoteCmd, candidatesPruneCmd)
	rootCmd.AddCommand(candidatesCmd)
}

func runCandidatesAdd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, _ := cmd.Flags().GetString("name")
	file, _ := cmd.Flags().GetString("file")
	language, _ := cmd.Flags().GetString("language")
	patternType, _ := cmd.Flags().GetString("type")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	parent, _ := cmd.Flags().GetString("parent")
	method, _ := cmd.Flags().GetString("method")

	code, err := readCode(file)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	c, err := st.AddCandidate(ctx, store.CandidateInput{
		Name:             name,
		Code:             code,
		Language:         language,
		PatternType:      patternType,
		Description:      description,
		Tags:             splitAndTrim(tags),
		ParentPattern:    parent,
		GenerationMethod: model.GenerationMethod(method),
	})
	if err != nil {
		return eris.Wrap(err, "candidates add")
	}

	fmt.Printf("Candidate %s added (coherency %.2f)\n", c.ID, c.Coherency)
	return nil
}

func runCandidatesList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	language, _ := cmd.Flags().GetString("language")
	minCoherency, _ := cmd.Flags().GetFloat64("min-coherency")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	candidates, err := st.GetAllCandidates(ctx, store.CandidateFilters{
		Language:     language,
		MinCoherency: minCoherency,
	})
	if err != nil {
		return eris.Wrap(err, "candidates list")
	}
	if len(candidates) == 0 {
		fmt.Println("No candidates.")
		return nil
	}

	fmt.Printf("%-38s %-24s %-10s %9s %-10s\n", "ID", "Name", "Language", "Coherency", "Method")
	fmt.Println(strings.Repeat("-", 96))
	for _, c := range candidates {
		name := c.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Printf("%-38s %-24s %-10s %9.2f %-10s\n", c.ID, name, c.Language, c.Coherency, c.GenerationMethod)
	}
	fmt.Printf("\n%d candidate(s)\n", len(candidates))
	return nil
}

func runCandidatesPromote(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	c, err := st.PromoteCandidate(ctx, args[0])
	if err != nil {
		return eris.Wrap(err, "candidates promote")
	}

	fmt.Printf("Candidate %s promoted at %s\n", c.ID, c.PromotedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runCandidatesPrune(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minCoherency, _ := cmd.Flags().GetFloat64("min-coherency")
	if minCoherency == 0 {
		minCoherency = cfg.Engine.GenerateThreshold
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	pruned, err := st.PruneCandidates(ctx, minCoherency)
	if err != nil {
		return eris.Wrap(err, "candidates prune")
	}

	fmt.Printf("Pruned %d candidate(s) below coherency %.2f\n", pruned, minCoherency)
	return nil
}
