package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/vncsmyrnk/places/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/places/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "migrations",
	Short:         "Apply the embedded postgres migrations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run every up migration in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB) error {
			return postgres.ApplyMigrations(cmd.Context(), db, "up")
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Run every down migration in reverse order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB) error {
			return postgres.ApplyMigrations(cmd.Context(), db, "down")
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <name>",
	Short: "Run a single migration file, e.g. create_votes.up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileName, err := postgres.FindMigration(args[0])
		if err != nil {
			return err
		}
		return withDB(func(db *sql.DB) error {
			return postgres.ExecMigration(cmd.Context(), db, fileName)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the embedded up migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := postgres.MigrationFiles("up")
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(upCmd, downCmd, runCmd, listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func withDB(fn func(db *sql.DB) error) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	if cfg.PostgresDB == "" {
		return errors.New("POSTGRES_DB is required")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fn(db); err != nil {
		return err
	}
	fmt.Println("Migration executed successfully.")
	return nil
}
