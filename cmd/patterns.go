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

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain stored patterns",
}

var patternsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one pattern by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runPatternsGet,
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored patterns",
	RunE:  runPatternsList,
}

var patternsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a pattern with optimistic concurrency",
	Long: `Update pattern fields. The write succeeds only when --version matches
the stored version; a mismatch means someone else wrote first and the
command must be retried against the fresh record.`,
	Args: cobra.ExactArgs(1),
	RunE: runPatternsUpdate,
}

func init() {
	f := patternsListCmd.Flags()
	f.String("language", "", "filter by language")
	f.String("tag", "", "filter by tag")
	f.Float64("min-coherency", 0, "minimum coherency score")
	f.Int("limit", 0, "maximum number of results")

	uf := patternsUpdateCmd.Flags()
	uf.Int("version", 0, "expected stored version (required)")
	uf.String("file", "", "replacement code file path")
	uf.String("description", "", "replacement description")
	uf.String("type", "", "replacement pattern type")
	uf.String("tags", "", "replacement comma-separated tags")
	_ = patternsUpdateCmd.MarkFlagRequired("version")

	patternsCmd.AddCommand(patternsGetCmd, patternsListCmd, patternsUpdateCmd)
	rootCmd.AddCommand(patternsCmd)
}

func runPatternsGet(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	p, err := st.Get(ctx, args[0])
	if err != nil {
		return eris.Wrap(err, "patterns get")
	}
	printPattern(p)
	fmt.Println("\n--- Code ---")
	fmt.Println(p.Code)
	return nil
}

func runPatternsList(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	language, _ := cmd.Flags().GetString("language")
	tag, _ := cmd.Flags().GetString("tag")
	minCoherency, _ := cmd.Flags().GetFloat64("min-coherency")
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	patterns, err := st.GetAll(ctx, store.Filters{
		Language:     language,
		Tag:          tag,
		MinCoherency: minCoherency,
		Limit:        limit,
	})
	if err != nil {
		return eris.Wrap(err, "patterns list")
	}
	if len(patterns) == 0 {
		fmt.Println("No patterns.")
		return nil
	}

	fmt.Printf("%-18s %-24s %-10s %-13s %9s %7s %5s\n",
		"ID", "Name", "Language", "Tier", "Coherency", "Usage", "Ver")
	fmt.Println(strings.Repeat("-", 92))
	for _, p := range patterns {
		name := p.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Printf("%-18s %-24s %-10s %-13s %9.2f %7d %5d\n",
			p.ID, name, p.Language, p.Tier, p.Coherency, p.UsageCount, p.Version)
	}
	fmt.Printf("\n%d pattern(s)\n", len(patterns))
	return nil
}

func runPatternsUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	version, _ := cmd.Flags().GetInt("version")
	file, _ := cmd.Flags().GetString("file")

	var up model.PatternUpdate
	if file != "" {
		code, err := readCode(file)
		if err != nil {
			return err
		}
		up.Code = &code
	}
	if cmd.Flags().Changed("description") {
		v, _ := cmd.Flags().GetString("description")
		up.Description = &v
	}
	if cmd.Flags().Changed("type") {
		v, _ := cmd.Flags().GetString("type")
		up.PatternType = &v
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		tags := splitAndTrim(v)
		up.Tags = &tags
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	p, err := st.Update(ctx, args[0], version, up)
	if err != nil {
		if eris.Is(err, model.ErrConcurrentModification) {
			return eris.Wrapf(err, "patterns update: version %d is stale, re-read and retry", version)
		}
		return eris.Wrap(err, "patterns update")
	}
	printPattern(p)
	return nil
}
