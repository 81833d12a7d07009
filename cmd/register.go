package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/store"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a code pattern",
	Long: `Register a code pattern in the store. The code is coherency-scored on
the way in and the complexity tier is derived from its size and nesting.

A pattern with the same name and language as an existing one replaces it
in place only when its coherency is strictly higher; otherwise the stored
version wins and the command prints it unchanged.

Examples:
  # Register from a file
  register --name stack --language go --file stack.go --tags data-structure,lifo

  # Register from stdin with a test result attached
  cat retry.go | register --name retry --language go --tests-passed`,
	RunE: runRegister,
}

func init() {
	f := registerCmd.Flags()
	f.String("name", "", "pattern name (required)")
	f.String("file", "", "code file path (default: stdin)")
	f.String("language", "", "pattern language (required)")
	f.String("type", "", "pattern type (e.g. data-structure, utility)")
	f.String("description", "", "what the pattern does")
	f.String("tags", "", "comma-separated tags")
	f.Bool("tests-passed", false, "mark the pattern as test-proven")
	f.Bool("tests-failed", false, "mark the pattern as having failing tests")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("language")

	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name, _ := cmd.Flags().GetString("name")
	file, _ := cmd.Flags().GetString("file")
	language, _ := cmd.Flags().GetString("language")
	patternType, _ := cmd.Flags().GetString("type")
	description, _ := cmd.Flags().GetString("description")
	tags, _ := cmd.Flags().GetString("tags")
	passed, _ := cmd.Flags().GetBool("tests-passed")
	failed, _ := cmd.Flags().GetBool("tests-failed")

	if passed && failed {
		return eris.New("register: --tests-passed and --tests-failed are mutually exclusive")
	}
	var testsPassed *bool
	if passed || failed {
		testsPassed = &passed
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

	p, err := st.Register(ctx, store.RegisterInput{
		Name:        name,
		Code:        code,
		Language:    language,
		PatternType: patternType,
		Description: description,
		Tags:        splitAndTrim(tags),
		TestsPassed: testsPassed,
	})
	if err != nil {
		return eris.Wrap(err, "register")
	}

	zap.L().Info("pattern registered",
		zap.String("id", p.ID),
		zap.String("name", p.Name),
		zap.Float64("coherency", p.Coherency),
	)
	printPattern(p)
	fmt.Println()
	return nil
}
