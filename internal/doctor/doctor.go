// Package doctor provides health checks for the grantor permission store.
//
// The doctor command validates that the grant store is properly set up by
// checking the schema, referential integrity of grant rows, and consistency
// between visibility flags and grants.
//
// Example usage:
//
//	d := doctor.New(db)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/lib/pq"

	"github.com/pthm/grantor"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Schema", "Visibility").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	// Print each category
	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				// Indent details
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	// Print summary
	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// readPermissions returns the read family as a driver-bindable array.
func readPermissions() any {
	perms := make([]string, len(grantor.ReadPermissions))
	for i, p := range grantor.ReadPermissions {
		perms[i] = string(p)
	}
	return pq.Array(perms)
}

// Doctor performs health checks on the grant store.
type Doctor struct {
	db *sql.DB
}

// New creates a new Doctor instance.
func New(db *sql.DB) *Doctor {
	return &Doctor{db: db}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	ok, err := d.checkSchema(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("checking schema: %w", err)
	}
	if !ok {
		// Without the schema the remaining checks cannot run.
		return report, nil
	}

	if err := d.checkReferentialIntegrity(ctx, report); err != nil {
		return nil, fmt.Errorf("checking referential integrity: %w", err)
	}
	if err := d.checkVisibility(ctx, report); err != nil {
		return nil, fmt.Errorf("checking visibility: %w", err)
	}

	return report, nil
}

var storeTables = []string{
	"organizations",
	"users",
	"groups",
	"groups_users",
	"components",
	"user_grants",
	"group_grants",
}

// checkSchema validates that every grant-store table exists. Returns false
// if any is missing.
func (d *Doctor) checkSchema(ctx context.Context, report *Report) (bool, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.relname
		  FROM pg_class c
		  JOIN pg_namespace n ON n.oid = c.relnamespace
		 WHERE n.nspname = current_schema()
		   AND c.relkind = 'r'
		   AND c.relname = ANY($1)`, pq.Array(storeTables))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	var missing []string
	for _, table := range storeTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}

	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: "Schema",
			Name:     "tables",
			Status:   StatusFail,
			Message:  fmt.Sprintf("%d of %d grant-store tables missing", len(missing), len(storeTables)),
			Details:  "missing: " + strings.Join(missing, ", "),
			FixHint:  "Run 'grantor migrate' to create the grant store",
		})
		return false, nil
	}

	report.AddCheck(CheckResult{
		Category: "Schema",
		Name:     "tables",
		Status:   StatusPass,
		Message:  fmt.Sprintf("All %d grant-store tables present", len(storeTables)),
	})
	return true, nil
}

// integrityCheck counts rows violating one referential rule.
type integrityCheck struct {
	name    string
	message string
	sql     string
}

var integrityChecks = []integrityCheck{
	{
		name:    "user_grants_users",
		message: "user grants referencing missing users",
		sql: `SELECT COUNT(*) FROM user_grants ug
		       WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = ug.user_id)`,
	},
	{
		name:    "user_grants_components",
		message: "user grants referencing missing components",
		sql: `SELECT COUNT(*) FROM user_grants ug
		       WHERE ug.component_uuid IS NOT NULL
		         AND NOT EXISTS (SELECT 1 FROM components p WHERE p.uuid = ug.component_uuid)`,
	},
	{
		name:    "group_grants_groups",
		message: "group grants referencing missing groups",
		sql: `SELECT COUNT(*) FROM group_grants gg
		       WHERE gg.group_id IS NOT NULL
		         AND NOT EXISTS (SELECT 1 FROM groups g WHERE g.id = gg.group_id)`,
	},
	{
		name:    "group_grants_components",
		message: "group grants referencing missing components",
		sql: `SELECT COUNT(*) FROM group_grants gg
		       WHERE gg.component_uuid IS NOT NULL
		         AND NOT EXISTS (SELECT 1 FROM components p WHERE p.uuid = gg.component_uuid)`,
	},
	{
		name:    "memberships",
		message: "group memberships referencing missing users or groups",
		sql: `SELECT COUNT(*) FROM groups_users gu
		       WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = gu.user_id)
		          OR NOT EXISTS (SELECT 1 FROM groups g WHERE g.id = gu.group_id)`,
	},
}

// checkReferentialIntegrity looks for grant rows pointing at rows that do not
// exist. Dead rows never grant anything but they skew counts and audits.
func (d *Doctor) checkReferentialIntegrity(ctx context.Context, report *Report) error {
	for _, check := range integrityChecks {
		var n int64
		if err := d.db.QueryRowContext(ctx, check.sql).Scan(&n); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}

		if n > 0 {
			report.AddCheck(CheckResult{
				Category: "Referential Integrity",
				Name:     check.name,
				Status:   StatusWarn,
				Message:  fmt.Sprintf("%d %s", n, check.message),
				FixHint:  "Delete the dangling rows",
			})
			continue
		}
		report.AddCheck(CheckResult{
			Category: "Referential Integrity",
			Name:     check.name,
			Status:   StatusPass,
			Message:  "No " + check.message,
		})
	}
	return nil
}

// checkVisibility looks for grants that visibility rules make inert or
// redundant, and for component trees whose flags drifted from their root.
func (d *Doctor) checkVisibility(ctx context.Context, report *Report) error {
	var inertAnyone int64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_grants gg
		  JOIN components p ON p.uuid = gg.component_uuid
		 WHERE gg.group_id IS NULL
		   AND p.private`).Scan(&inertAnyone)
	if err != nil {
		return err
	}
	if inertAnyone > 0 {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "inert_anyone_grants",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d Anyone grants on private components", inertAnyone),
			Details:  "Anyone grants never apply on private components",
			FixHint:  "Run 'grantor visibility' to clean them up",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "inert_anyone_grants",
			Status:   StatusPass,
			Message:  "No Anyone grants on private components",
		})
	}

	var drifted int64
	err = d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM components c
		  JOIN components r ON r.uuid = c.root_uuid
		 WHERE c.uuid <> c.root_uuid
		   AND c.private <> r.private`).Scan(&drifted)
	if err != nil {
		return err
	}
	if drifted > 0 {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "tree_drift",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d components with a visibility flag differing from their root", drifted),
			Details:  "Visibility is defined per tree; descendants must match their root",
			FixHint:  "Run 'grantor visibility' to re-sync the trees",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "tree_drift",
			Status:   StatusPass,
			Message:  "All component trees share their root's visibility",
		})
	}

	var redundant int64
	err = d.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM group_grants gg
		     JOIN components p ON p.uuid = gg.component_uuid
		    WHERE gg.group_id IS NOT NULL
		      AND NOT p.private
		      AND gg.permission = ANY($1))
		+ (SELECT COUNT(*) FROM user_grants ug
		     JOIN components p ON p.uuid = ug.component_uuid
		    WHERE NOT p.private
		      AND ug.permission = ANY($1))`,
		readPermissions()).Scan(&redundant)
	if err != nil {
		return err
	}
	if redundant > 0 {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "redundant_read_grants",
			Status:   StatusWarn,
			Message:  fmt.Sprintf("%d scoped read grants on public components", redundant),
			Details:  "Public visibility already implies read access for everyone",
			FixHint:  "Run 'grantor visibility' to prune them",
		})
	} else {
		report.AddCheck(CheckResult{
			Category: "Visibility",
			Name:     "redundant_read_grants",
			Status:   StatusPass,
			Message:  "No scoped read grants on public components",
		})
	}

	return nil
}
