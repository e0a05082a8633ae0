// Package main provides a CLI for managing the grantor permission store.
//
// The CLI supports:
//   - migrate: Create the grant-store tables in PostgreSQL
//   - status: Check current schema and row counts
//   - resolve: Resolve effective permissions for a principal
//   - visibility: Run the visibility consistency migration
//
// This tool is typically run during deployment to keep the database schema
// in place, and interactively when debugging permission resolution.
//
// Usage:
//
//	grantor [flags] <command>
//
// All commands except config and version need -db or GRANTOR_DATABASE_URL.
package main

func main() {
	Execute()
}
