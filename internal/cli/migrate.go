package cli

import (
	"github.com/tl-its-umich-edu/placement-exams/internal/db"

	"github.com/spf13/cobra"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create the database tables",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := rootOpts.setup()
			if err != nil {
				return err
			}
			defer database.Close()

			return db.Migrate(cmd.Context(), database, cfg.Database.Driver)
		},
	}
}
