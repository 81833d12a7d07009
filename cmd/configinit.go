package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codekeep/codekeep/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml with every default",
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().String("output", "config.yaml", "output file path")
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if !force {
		if _, err := os.Stat(output); err == nil {
			return eris.Errorf("config init: %s already exists (use --force to overwrite)", output)
		}
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return eris.Wrap(err, "config init: marshal defaults")
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return eris.Wrapf(err, "config init: write %s", output)
	}

	fmt.Printf("Wrote %s\n", output)
	return nil
}
