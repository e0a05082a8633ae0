package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/grantor/internal/cli"
	"github.com/pthm/grantor/pkg/visibility"
)

var (
	visibilityDB  string
	visibilityYes bool
)

var visibilityCmd = &cobra.Command{
	Use:   "visibility",
	Short: "Run the visibility consistency migration",
	Long: `Run the visibility consistency migration.

Public project and view trees with no Anyone read grant are made private
and lose their Anyone grants. Trees that stay public lose the user- and
group-scoped read grants that visibility already implies.

The migration rewrites visibility flags and deletes grant rows. It is
idempotent but not reversible.`,
	Example: `  # Run the migration
  grantor visibility --db postgres://localhost/mydb --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(visibilityDB)
		if err != nil {
			return err
		}
		if !visibilityYes && !cfg.Visibility.Yes {
			if !confirm("This migration rewrites visibility flags and deletes grant rows. Continue? [y/N] ") {
				fmt.Println("Aborted.")
				return nil
			}
		}
		return runVisibility(dsn)
	},
}

func init() {
	f := visibilityCmd.Flags()
	f.StringVar(&visibilityDB, "db", "", "database URL")
	f.BoolVar(&visibilityYes, "yes", false, "skip the confirmation prompt")
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func runVisibility(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := visibility.NewMigrator(db).Run(context.Background()); err != nil {
		return cli.MigrationError("visibility migration failed", err)
	}

	if !quiet {
		fmt.Println("Visibility migration completed.")
	}
	return nil
}
