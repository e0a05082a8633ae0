// Package store creates and inspects the grant-store schema.
//
// The runtime engine in the root package only reads these tables; the DDL
// lives here so that the CLI and tests can stand up a store. Migrations are
// embedded SQL files applied with goose, idempotent and safe to run on every
// application startup.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Migrate applies all pending grant-store migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Status represents the current state of the grant store.
// Use GetStatus to check whether the engine can run against a database.
type Status struct {
	// SchemaExists indicates whether the grant tables have been created.
	SchemaExists bool

	// Organizations is the number of organizations in the store.
	Organizations int

	// Grants is the total number of grant rows, user and group scoped.
	Grants int
}

// GetStatus returns the current grant-store status.
// Useful for health checks and the CLI status command.
func GetStatus(ctx context.Context, db *sql.DB) (*Status, error) {
	status := &Status{}

	var schemaExists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_class c
			JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE c.relname = 'group_grants'
			AND n.nspname = current_schema()
			AND c.relkind = 'r'
		)
	`).Scan(&schemaExists)
	if err != nil {
		return nil, fmt.Errorf("checking group_grants: %w", err)
	}
	status.SchemaExists = schemaExists
	if !schemaExists {
		return status, nil
	}

	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM organizations").Scan(&status.Organizations)
	if err != nil {
		return nil, fmt.Errorf("counting organizations: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM user_grants) + (SELECT COUNT(*) FROM group_grants)
	`).Scan(&status.Grants)
	if err != nil {
		return nil, fmt.Errorf("counting grants: %w", err)
	}

	return status, nil
}
