package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/artpar/docforge/adapters/sqlite"
	"github.com/artpar/docforge/config"
	"github.com/artpar/docforge/domain/execution"
	"github.com/spf13/cobra"
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "Show the execution ledger",
	Long: `List recorded pipeline executions, newest first.

Examples:
  docforge executions
  docforge executions --bundle report --status failed
  docforge executions show 7f9c...`,
	RunE: runExecutionsList,
}

var executionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one execution",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionsShow,
}

var (
	executionsBundle string
	executionsStatus string
	executionsLimit  int
)

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.AddCommand(executionsShowCmd)

	executionsCmd.Flags().StringVar(&executionsBundle, "bundle", "", "filter by bundle")
	executionsCmd.Flags().StringVar(&executionsStatus, "status", "", "filter by status (succeeded, failed)")
	executionsCmd.Flags().IntVar(&executionsLimit, "limit", 20, "maximum number of records")
}

func openLedger() (*sqlite.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return sqlite.Open(cfg.Resolve(cfg.Results.DSN))
}

func runExecutionsList(cmd *cobra.Command, args []string) error {
	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	recs, err := sqlite.NewResultStore(db).List(cmd.Context(), execution.Filter{
		Bundle: executionsBundle,
		Status: execution.Status(executionsStatus),
		Limit:  executionsLimit,
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No executions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBUNDLE\tFORMAT\tSTATUS\tWARNINGS\tSTARTED\tDURATION")
	fmt.Fprintln(w, "--\t------\t------\t------\t--------\t-------\t--------")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Bundle, r.Format, r.Status, len(r.Warnings),
			r.StartedAt.Local().Format(time.DateTime), r.Duration.Round(time.Microsecond))
	}
	return w.Flush()
}

func runExecutionsShow(cmd *cobra.Command, args []string) error {
	db, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := sqlite.NewResultStore(db).Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", r.ID)
	fmt.Fprintf(out, "Bundle:    %s\n", r.Bundle)
	fmt.Fprintf(out, "Status:    %s\n", r.Status)
	fmt.Fprintf(out, "Format:    %s\n", r.Format)
	if r.InputPath != "" {
		fmt.Fprintf(out, "Input:     %s\n", r.InputPath)
	}
	if r.OutputPath != "" {
		fmt.Fprintf(out, "Output:    %s\n", r.OutputPath)
	}
	fmt.Fprintf(out, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Duration:  %s\n", r.Duration)
	if !r.Succeeded() {
		fmt.Fprintf(out, "Error:     [%s] %s\n", r.ErrorKind, r.Error)
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(out, "Warnings:\n  %s\n", strings.Join(r.Warnings, "\n  "))
	}
	return nil
}
