package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/grantor/internal/cli"
	"github.com/pthm/grantor/pkg/store"
)

var migrateDB string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the grant-store schema",
	Long:  `Create the grant-store tables and indexes in PostgreSQL.`,
	Example: `  # Apply schema to database
  grantor migrate --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(dsn)
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDB, "db", "", "database URL")
}

func runMigrate(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if !quiet {
		fmt.Println("Applying grant-store schema...")
	}

	if err := store.Migrate(db); err != nil {
		return cli.MigrationError("migration failed", err)
	}

	if !quiet {
		fmt.Println("Grant-store schema applied successfully.")
	}

	s, err := store.GetStatus(context.Background(), db)
	if err == nil && s.Organizations == 0 && !quiet {
		fmt.Println()
		fmt.Println("The store is empty. Resolution returns no permissions until")
		fmt.Println("organizations, components and grants are loaded.")
	}

	return nil
}
