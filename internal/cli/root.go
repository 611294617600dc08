package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tl-its-umich-edu/placement-exams/internal/config"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/logger"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the pe-sync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pe-sync",
		Short: "Placement exam score sync",
		Long:  "Moves graded placement exam scores from Canvas to M-Pathways.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (defaults to $CONFIG_PATH or config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLoadFixturesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// setup loads config, initializes logging and opens the database.
func (o *RootOptions) setup() (*config.Config, *sql.DB, error) {
	load := config.Load
	if o.ConfigPath != "" {
		load = func() (*config.Config, error) { return config.LoadFile(o.ConfigPath) }
	}

	cfg, err := load()
	if err != nil {
		return nil, nil, err
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	logger.Init(cfg.Logging)

	database, err := db.NewConnection(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, database, nil
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
