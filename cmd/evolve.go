package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/decision"
)

var evolveCmd = &cobra.Command{
	Use:   "evolve <parent-id>",
	Short: "Register a new pattern evolved from an existing one",
	Long: `Register new code as a child of an existing pattern. The child inherits
the parent's language and any metadata not overridden, and both records
carry the evolution link.

Examples:
  evolve a1b2c3d4e5f60708 --file stack_v2.go --name stack-generic`,
	Args: cobra.ExactArgs(1),
	RunE: runEvolve,
}

func init() {
	f := evolveCmd.Flags()
	f.String("file", "", "evolved code file path (default: stdin)")
	f.String("name", "", "child pattern name (default: parent name with -evolved suffix)")
	f.String("description", "", "child description (default: inherited)")
	f.String("type", "", "child pattern type (default: inherited)")
	f.String("tags", "", "comma-separated child tags (default: inherited)")
	f.Bool("tests-passed", false, "mark the child as test-proven")

	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, _ := cmd.Flags().GetString("file")
	name, _ := cmd.Flags().GetString("name")
	description, _ := cmd.Flags().GetString("description")
	patternType, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetString("tags")

	var testsPassed *bool
	if cmd.Flags().Changed("tests-passed") {
		v, _ := cmd.Flags().GetBool("tests-passed")
		testsPassed = &v
	}

	code, err := readCode(file)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine := decision.New(st, cfg.Engine)
	in := decision.EvolveInput{
		Name:        name,
		Description: description,
		PatternType: patternType,
		TestsPassed: testsPassed,
	}
	if tags != "" {
		in.Tags = splitAndTrim(tags)
	}

	child, err := engine.Evolve(ctx, args[0], code, in)
	if err != nil {
		return eris.Wrap(err, "evolve")
	}

	printPattern(child)
	fmt.Printf("\nEvolved from %s\n", args[0])
	return nil
}
