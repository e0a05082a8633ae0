package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/grantor/internal/cli"
	"github.com/pthm/grantor/pkg/store"
)

var statusDB string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show grant-store status",
	Long:  `Show whether the grant-store schema is in place and how much it holds.`,
	Example: `  # Check status
  grantor status --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(statusDB)
		if err != nil {
			return err
		}
		return runStatus(dsn)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDB, "db", "", "database URL")
}

func runStatus(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	s, err := store.GetStatus(context.Background(), db)
	if err != nil {
		return cli.GeneralError("getting status", err)
	}

	if s.SchemaExists {
		fmt.Println("Schema:         present")
		fmt.Printf("Organizations:  %d\n", s.Organizations)
		fmt.Printf("Grants:         %d\n", s.Grants)
	} else {
		fmt.Println("Schema:         missing")
		fmt.Println()
		fmt.Println("Run `grantor migrate` to create the grant store.")
	}

	return nil
}
