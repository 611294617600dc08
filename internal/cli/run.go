package cli

import (
	"encoding/json"

	"github.com/tl-its-umich-edu/placement-exams/internal/app"
	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/queue"

	"github.com/spf13/cobra"
)

type RunOptions struct {
	*RootOptions
	JSON bool
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sync every configured exam once",
		Long: `Fetch newly graded submissions for every exam, send pending scores to
M-Pathways and deliver the per-report summaries.

Example:
  pe-sync run --config ./config.yaml
  pe-sync run --json`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the run result as JSON")

	return cmd
}

func runSync(cmd *cobra.Command, opts *RunOptions) error {
	cfg, database, err := opts.setup()
	if err != nil {
		return err
	}
	defer database.Close()

	var redisClient *queue.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = queue.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	runner, err := app.NewRunner(cfg, db.NewRepository(database), redisClient)
	if err != nil {
		return err
	}

	result, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return nil
}
