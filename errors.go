package grantor

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for failure modes that mean the grant store is not set up,
// as opposed to an ordinary storage failure. Resolution for a principal that
// simply holds nothing returns empty results, never an error.
var (
	// ErrMissingSchema is returned when a grant-store table does not exist.
	// Run `grantor migrate` to create the schema.
	ErrMissingSchema = errors.New("grantor: grant store schema missing")
)

// IsMissingSchemaErr returns true if err is or wraps ErrMissingSchema.
func IsMissingSchemaErr(err error) bool {
	return errors.Is(err, ErrMissingSchema)
}

// PostgreSQL error codes used for error mapping.
const (
	pgUndefinedTable = "42P01" // undefined_table
)

// grantTables are the relations the engine reads. An undefined-table error
// naming one of them is a setup problem, not a data problem.
var grantTables = []string{
	"organizations",
	"users",
	"groups_users",
	"groups",
	"components",
	"user_grants",
	"group_grants",
}

// mapError wraps storage errors, converting undefined-table failures on the
// grant-store relations into ErrMissingSchema. Everything else propagates
// unmodified apart from the operation prefix; the engine never retries.
func mapError(operation string, err error) error {
	if sqlState(err) == pgUndefinedTable {
		errStr := err.Error()
		for _, table := range grantTables {
			if strings.Contains(errStr, table) {
				return fmt.Errorf("%w: %v", ErrMissingSchema, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	if e, ok := err.(sqlStateErr); ok {
		return e.SQLState()
	}

	type codeErr interface{ Code() string }
	if e, ok := err.(codeErr); ok {
		return e.Code()
	}

	// Fallback: string matching for known patterns (last resort)
	errStr := err.Error()
	if strings.Contains(errStr, "SQLSTATE") {
		// Format: "... (SQLSTATE 42P01)" or "SQLSTATE: 42P01"
		for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
			if idx := strings.Index(errStr, prefix); idx >= 0 {
				start := idx + len(prefix)
				if start+5 <= len(errStr) {
					return errStr[start : start+5]
				}
			}
		}
	}

	return ""
}
