package main

import (
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/split-budget/internal/app"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, inspect or roll back database migrations",
	}

	run := func(action func(*db.DB) error) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			database, err := app.OpenDatabase(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer database.Close()
			return action(database)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run((*db.DB).RunMigrations),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE:  run((*db.DB).RollbackMigration),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			Args:  cobra.NoArgs,
			RunE:  run((*db.DB).MigrationStatus),
		},
	)
	return cmd
}
