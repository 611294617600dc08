package cli

import (
	"fmt"

	"github.com/tl-its-umich-edu/placement-exams/internal/db"
	"github.com/tl-its-umich-edu/placement-exams/internal/fixtures"

	"github.com/spf13/cobra"
)

func NewLoadFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load-fixtures <file>",
		Short: "Create or update reports and exams from a YAML file",
		Long: `Validate a fixtures file and upsert its reports (by id) and exams
(by SA code) in one transaction.

Example:
  pe-sync load-fixtures ./fixtures.yaml`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, database, err := rootOpts.setup()
			if err != nil {
				return err
			}
			defer database.Close()

			file, err := fixtures.Load(cmd.Context(), db.NewRepository(database), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d reports and %d exams\n", len(file.Reports), len(file.Exams))
			return nil
		},
	}
}
