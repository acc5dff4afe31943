// Package commands implements the certctl maintenance CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"certregistry/internal/app"
	"certregistry/internal/platform/config"
	"certregistry/internal/platform/logger"
	"certregistry/internal/printer"
	"certregistry/pkg/requestcontext"
)

// cliActor is recorded on audit logs written by maintenance commands.
const cliActor = "certctl"

var globalFlags = struct {
	logLevel string
}{}

// NewRootCmd builds a fresh command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "certctl",
		Short: "Maintenance tooling for the certificate registry",
		Long: `certctl validates and imports the label knowledge base, exports
consignment data, and runs integrity checks against the registry.

Configuration is read from CERT_* environment variables, the same
ones the server uses.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&globalFlags.logLevel, "log-level", "", "override CERT_LOG_LEVEL")

	root.AddCommand(
		kbCommand(),
		exportCommand(),
		censusCommand(),
		auditCommand(),
		tokenCommand(),
		outboxCommand(),
	)
	return root
}

// Execute runs the CLI against os.Args.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		printer.New(root.ErrOrStderr()).Failure("%v", err)
		return err
	}
	return nil
}

func out(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout())
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if globalFlags.logLevel != "" {
		cfg.LogLevel = globalFlags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// openApp builds the object graph. Logs go to stderr so stdout stays clean
// for CSV and JSON output.
func openApp(cmd *cobra.Command) (*app.App, context.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)
	ctx := requestcontext.WithActor(cmd.Context(), cliActor, "admin")
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return a, ctx, nil
}

// requireDatabase rejects commands whose result would be meaningless
// against the empty in-memory stores.
func requireDatabase(a *app.App) error {
	if a.DB == nil {
		return fmt.Errorf("this command needs a database; set CERT_DATABASE_DSN")
	}
	return nil
}

func closeApp(a *app.App, log *slog.Logger) {
	if err := a.Close(); err != nil {
		log.Warn("shutdown failed", "error", err)
	}
}

func fileExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	return nil
}
