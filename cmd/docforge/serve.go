package main

import (
	"fmt"

	"github.com/artpar/docforge/bootstrap"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the docforge HTTP API.

The server will:
  - Load configuration from docforge.yaml (or --config)
  - Stage every configured bundle and activate the configured one
  - Open the execution ledger when results are enabled
  - Reload bundles when the config or a bundle file changes, or on SIGHUP

Environment variables:
  DOCFORGE_SERVER_HOST      - Listen host (default: 127.0.0.1)
  DOCFORGE_SERVER_PORT      - Listen port (default: 8080)
  DOCFORGE_ACTIVE           - Bundle to activate
  DOCFORGE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  docforge serve
  docforge serve --config /etc/docforge/docforge.toml
  docforge serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload bundles when files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath:       cfgFile,
		DisableHotReload: !hotReload,
	})
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	return app.Run()
}
