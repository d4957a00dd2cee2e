package main

import (
	"context"
	"fmt"
	"os"

	"github.com/artpar/docforge/adapters/sqlite"
	"github.com/artpar/docforge/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and bundles",
	Long: `Validate the docforge configuration file.

Checks:
  - YAML or TOML syntax is valid
  - Required fields are present
  - Every bundle's schema, template and prompt files load
  - Every bundle activates ($ref resolution succeeds)
  - The execution ledger is writable (optional)

Examples:
  docforge validate
  docforge validate --config /etc/docforge/docforge.toml --check-database`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the ledger database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)
	fmt.Fprintf(out, "  %s Formats: %d\n", checkMark, len(cfg.Formats))

	inj, err := stagedInjector(cfg)
	if err != nil {
		fmt.Fprintf(out, "  %s Bundle files load\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Bundle files load (%d bundles)\n", checkMark, len(cfg.Bundles))

	failed := 0
	for _, b := range cfg.Bundles {
		loaded, err := inj.Activate(context.Background(), b.Name)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %s Bundle %s\n", crossMark, b.Name)
			fmt.Fprintf(out, "      Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "  %s Bundle %s: %d properties, %s template\n",
			checkMark, b.Name, len(loaded.Schema.Resolved.Properties), loaded.Template.Template.Format)
	}

	if cfg.Active != "" {
		fmt.Fprintf(out, "  %s Active bundle: %s\n", checkMark, cfg.Active)
	}

	if validateCheckDatabase {
		st, err := checkDatabase(cmd.Context(), cfg.Resolve(cfg.Results.DSN))
		if err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable (ledger %s, %d executions)\n", checkMark, st.Version, st.Executions)
		}
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d bundle(s) failed to activate", failed)
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func checkDatabase(ctx context.Context, dsn string) (sqlite.Status, error) {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return sqlite.Status{}, err
	}
	defer db.Close()
	return db.Check(ctx)
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
