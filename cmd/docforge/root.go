package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docforge",
	Short: "Schema-driven document processing and template rendering",
	Long: `docforge reads documents with a frontmatter block, evaluates the x-*
directives of a JSON schema against them and renders the result through a
template as JSON, YAML, XML or text.

Quick start:
  docforge render --schema note.json --template note.txt --input doc.md --format custom
  docforge serve     # Start the HTTP API

Inspection:
  docforge schemas     # List configured bundles
  docforge validate    # Validate configuration and bundles
  docforge executions  # Show the execution ledger`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "docforge.yaml", "config file path")
}
