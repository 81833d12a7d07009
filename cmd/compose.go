package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/codekeep/codekeep/internal/decision"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Build a composite pattern from stored components",
	Long: `Assemble a composite pattern from existing patterns. Components are
resolved by id first, then by name. Without --file the component bodies
are concatenated; the composite records its components in both Requires
and ComposedOf.

Examples:
  compose --name cached-fetcher --components http-get,lru-cache
  compose --name api-client --components a1b2c3d4,retry --file glue.go`,
	RunE: runCompose,
}

var depsCmd = &cobra.Command{
	Use:   "deps <id>",
	Short: "Resolve a pattern's dependency closure",
	Long: `Walk a pattern's Requires graph and print every transitive dependency
in leaves-first order. Cycles terminate and each pattern appears once.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeps,
}

func init() {
	f := composeCmd.Flags()
	f.String("name", "", "composite pattern name (required)")
	f.String("components", "", "comma-separated component ids or names (required)")
	f.String("file", "", "glue code file path (default: concatenate components)")
	f.String("description", "", "composite description")
	f.String("tags", "", "comma-separated extra tags (component tags are merged in)")
	f.String("language", "", "composite language (default: first component's)")
	_ = composeCmd.MarkFlagRequired("name")
	_ = composeCmd.MarkFlagRequired("components")

	rootCmd.AddCommand(composeCmd, depsCmd)
}

func runCompose(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, _ := cmd.Flags().GetString("name")
	components, _ := cmd.Flags().GetString("components")
	file, _ := cmd.Flags().GetString("file")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	language, _ := cmd.Flags().GetString("language")

	var code string
	if file != "" {
		var err error
		code, err = readCode(file)
		if err != nil {
			return err
		}
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine := decision.New(st, cfg.Engine)
	composite, err := engine.Compose(ctx, decision.ComposeInput{
		Name:        name,
		Components:  splitAndTrim(components),
		Code:        code,
		Description: description,
		Tags:        splitAndTrim(tags),
		Language:    language,
	})
	if err != nil {
		return eris.Wrap(err, "compose")
	}

	printPattern(composite)
	return nil
}

func runDeps(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine := decision.New(st, cfg.Engine)
	deps, err := engine.ResolveDependencies(ctx, args[0])
	if err != nil {
		return eris.Wrap(err, "deps")
	}
	if len(deps) == 0 {
		fmt.Println("No dependencies.")
		return nil
	}

	for i, d := range deps {
		fmt.Printf("%2d. %-18s %-24s %s\n", i+1, d.ID, d.Name, d.Language)
	}
	return nil
}
