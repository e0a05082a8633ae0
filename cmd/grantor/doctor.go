package main

import (
	"context"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/grantor/internal/cli"
	"github.com/pthm/grantor/internal/doctor"
)

var (
	doctorDB      string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the grant store",
	Long: `Run health checks on the grant store.

Checks that the schema is in place, that grant rows reference existing
users, groups and components, and that visibility flags are consistent
with the grants they gate.`,
	Example: `  # Run health checks
  grantor doctor --db postgres://localhost/mydb

  # Run health checks with verbose output
  grantor doctor --db postgres://localhost/mydb --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN(doctorDB)
		if err != nil {
			return err
		}
		return runDoctor(dsn)
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.BoolVarP(&doctorVerbose, "verbose", "v", false, "show check details")
}

func runDoctor(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	fmt.Println("grantor doctor - Health Check")

	report, err := doctor.New(db).Run(context.Background())
	if err != nil {
		return cli.GeneralError("running doctor", err)
	}

	report.Print(os.Stdout, doctorVerbose)

	if report.HasErrors() {
		os.Exit(cli.ExitGeneral)
	}
	return nil
}
