package main

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/grantor"
	"github.com/pthm/grantor/internal/cli"
)

var (
	resolveDB      string
	resolveUserID  int64
	resolveAnon    bool
	resolveOrg     string
	resolveProject string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve effective permissions for a principal",
	Long: `Resolve the effective permissions a principal holds, either globally
within an organization or on a single project.`,
	Example: `  # Global permissions of user 42 in an organization
  grantor resolve --db postgres://localhost/mydb --user 42 --org org-uuid

  # Project permissions of the anonymous caller
  grantor resolve --db postgres://localhost/mydb --anonymous --project project-uuid`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveAnon == (resolveUserID != 0) {
			return cli.ConfigError("exactly one of --user or --anonymous is required", nil)
		}
		if (resolveOrg == "") == (resolveProject == "") {
			return cli.ConfigError("exactly one of --org or --project is required", nil)
		}

		dsn, err := resolveDSN(resolveDB)
		if err != nil {
			return err
		}
		return runResolve(dsn)
	},
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveDB, "db", "", "database URL")
	f.Int64Var(&resolveUserID, "user", 0, "resolve for this user id")
	f.BoolVar(&resolveAnon, "anonymous", false, "resolve for the anonymous caller")
	f.StringVar(&resolveOrg, "org", "", "organization UUID for global permissions")
	f.StringVar(&resolveProject, "project", "", "project UUID for project permissions")
}

func runResolve(dsn string) error {
	db, err := openDB(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	principal := grantor.Anonymous()
	if !resolveAnon {
		principal = grantor.User(resolveUserID)
	}

	opts := []grantor.Option{}
	if ttl := cfg.Resolve.CacheTTL; ttl > 0 {
		opts = append(opts, grantor.WithCache(grantor.NewCache(grantor.WithTTL(ttl))))
	}
	resolver := grantor.NewResolver(db, opts...)

	ctx := context.Background()
	var perms []grantor.Permission
	if resolveOrg != "" {
		perms, err = resolver.GlobalPermissions(ctx, principal, resolveOrg)
	} else {
		perms, err = resolver.ProjectPermissions(ctx, principal, resolveProject)
	}
	if err != nil {
		if grantor.IsMissingSchemaErr(err) {
			return cli.MigrationError("grant store schema missing, run `grantor migrate`", err)
		}
		return cli.GeneralError("resolving permissions", err)
	}

	if len(perms) == 0 {
		fmt.Printf("%s holds no permissions\n", principal)
		return nil
	}

	fmt.Printf("%s holds:\n", principal)
	for _, p := range perms {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
