package command

import (
	"coursehub/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := database.Migrate(s.db, s.cfg.DatabaseDriver, s.logger); err != nil {
			return err
		}
		return printVersion(s)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			steps = 1
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := database.Rollback(s.db, s.cfg.DatabaseDriver, steps, s.logger); err != nil {
			return err
		}
		return printVersion(s)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return printVersion(s)
	},
}

func printVersion(s *session) error {
	version, dirty, err := database.MigrationVersion(s.db, s.cfg.DatabaseDriver)
	if err != nil {
		return err
	}
	if dirty {
		color.Yellow("⚠ schema version %d (dirty)", version)
		return nil
	}
	color.Green("✓ schema version %d", version)
	return nil
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}
