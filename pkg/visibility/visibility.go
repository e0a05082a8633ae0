// Package visibility makes the private flag of every project tree agree
// with its grants, as a one-shot batch migration over the whole grant store.
//
// Before the flag became authoritative, "private" was only implied by the
// absence of an Anyone grant for browse access. The migration runs two
// phases over the project and view roots:
//
//  1. Classify every public root by whether an Anyone grant for a
//     read-family permission exists on it. Roots without one are flipped to
//     private, every Anyone grant on them is deleted (visibility is binary;
//     a private root has no legitimate anonymous grant), and the private
//     flag is forced onto every descendant of the tree. Roots with one stay
//     public and have the public flag forced onto their descendants - in
//     both cases the root is authoritative and descendant flags are
//     overwritten unconditionally. Roots already private are left
//     untouched, including any inconsistently flagged descendants under
//     them.
//  2. Every root still public afterwards has its user- and group-scoped
//     read-family grants deleted: browse access on a public project is
//     universal, so those grants are redundant. Anyone grants and grants
//     for other permissions are kept.
//
// Phase 2's root set depends on Phase 1's flips, so each phase commits in
// its own transaction before the next begins. A crash leaves the store
// either untouched or with Phase 1 committed; re-running is idempotent
// because both phase predicates are re-evaluated from current data. The
// migration expects no concurrent writers to the grant store.
package visibility

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/lib/pq"

	"github.com/pthm/grantor"
)

// readPermissions returns the read family as a driver-bindable array.
func readPermissions() any {
	perms := make([]string, len(grantor.ReadPermissions))
	for i, p := range grantor.ReadPermissions {
		perms[i] = string(p)
	}
	return pq.Array(perms)
}

// updateKind enumerates the mutations a step can issue per selected root.
// Declaring the kind next to its statement keeps the row-to-mutation mapping
// explicit instead of being inferred from statement position.
type updateKind int

const (
	makeTreePrivate updateKind = iota
	makeTreePublic
	deleteAnyoneGrants
	deleteGroupReadGrants
	deleteUserReadGrants
)

// mutation pairs an update kind with its statement. The statement's
// parameters are produced by args for the given kind.
type mutation struct {
	kind updateKind
	stmt string
}

// args returns the bind parameters for one mutation applied to one root.
// An unknown kind is a programming defect and aborts the batch.
func (k updateKind) args(rootUUID string) ([]any, error) {
	switch k {
	case makeTreePrivate, makeTreePublic, deleteAnyoneGrants:
		return []any{rootUUID}, nil
	case deleteGroupReadGrants, deleteUserReadGrants:
		return []any{rootUUID, readPermissions()}, nil
	default:
		return nil, fmt.Errorf("visibility: unsupported update kind %d", k)
	}
}

// step selects a set of roots and applies the same mutations to each.
type step struct {
	rowPluralName string
	selectSQL     string
	selectArgs    []any
	mutations     []mutation
}

// Migrator fixes project visibility flags and prunes redundant grants.
// It is the only component that writes to the grant store; it takes no
// input beyond the database handle and reports success or the first
// storage failure.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a visibility migrator. The database handle must be a
// *sql.DB: each phase opens and commits its own transaction.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Run executes both phases in order. Phase 1 commits before Phase 2 starts.
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.classifyAndFlipRoots(ctx); err != nil {
		return err
	}
	return m.pruneRedundantReadGrants(ctx)
}

const unreadablePublicRootsSQL = `
SELECT p.uuid
  FROM components p
 WHERE p.uuid = p.root_uuid
   AND p.qualifier IN ('project', 'view')
   AND NOT p.private
   AND NOT EXISTS (
     SELECT 1 FROM group_grants gg
      WHERE gg.component_uuid = p.uuid
        AND gg.group_id IS NULL
        AND gg.permission = ANY($1))`

const readablePublicRootsSQL = `
SELECT p.uuid
  FROM components p
 WHERE p.uuid = p.root_uuid
   AND p.qualifier IN ('project', 'view')
   AND NOT p.private
   AND EXISTS (
     SELECT 1 FROM group_grants gg
      WHERE gg.component_uuid = p.uuid
        AND gg.group_id IS NULL
        AND gg.permission = ANY($1))`

// classifyAndFlipRoots is Phase 1: public roots with no Anyone read-family
// grant become private trees with no Anyone grants at all; the rest stay
// public and push their flag down the tree.
func (m *Migrator) classifyAndFlipRoots(ctx context.Context) error {
	return m.runPhase(ctx,
		step{
			rowPluralName: "component trees to be made private",
			selectSQL:     unreadablePublicRootsSQL,
			selectArgs:    []any{readPermissions()},
			mutations: []mutation{
				{makeTreePrivate, "UPDATE components SET private = TRUE WHERE root_uuid = $1"},
				{deleteAnyoneGrants, "DELETE FROM group_grants WHERE component_uuid = $1 AND group_id IS NULL"},
			},
		},
		step{
			rowPluralName: "component trees staying public",
			selectSQL:     readablePublicRootsSQL,
			selectArgs:    []any{readPermissions()},
			mutations: []mutation{
				{makeTreePublic, "UPDATE components SET private = FALSE WHERE root_uuid = $1"},
			},
		})
}

const publicRootsWithReadGrantsSQL = `
SELECT p.uuid
  FROM components p
 WHERE p.uuid = p.root_uuid
   AND p.qualifier IN ('project', 'view')
   AND NOT p.private
   AND (
     EXISTS (
       SELECT 1 FROM group_grants gg
        WHERE gg.component_uuid = p.uuid
          AND gg.group_id IS NOT NULL
          AND gg.permission = ANY($1))
     OR EXISTS (
       SELECT 1 FROM user_grants ug
        WHERE ug.component_uuid = p.uuid
          AND ug.permission = ANY($1)))`

// pruneRedundantReadGrants is Phase 2: roots that remain public lose their
// user- and group-scoped read-family grants. Anyone grants are untouched.
func (m *Migrator) pruneRedundantReadGrants(ctx context.Context) error {
	return m.runPhase(ctx, step{
		rowPluralName: "public component trees to clean grants of",
		selectSQL:     publicRootsWithReadGrantsSQL,
		selectArgs:    []any{readPermissions()},
		mutations: []mutation{
			{deleteGroupReadGrants, "DELETE FROM group_grants WHERE component_uuid = $1 AND group_id IS NOT NULL AND permission = ANY($2)"},
			{deleteUserReadGrants, "DELETE FROM user_grants WHERE component_uuid = $1 AND permission = ANY($2)"},
		},
	})
}

// runPhase executes the steps of one phase inside a single transaction: a
// crash mid-phase rolls back to the previous phase boundary. Each step
// selects its full root set up front, so mutations never run under an open
// cursor; roots are independent of each other and their order carries no
// meaning.
func (m *Migrator) runPhase(ctx context.Context, steps ...step) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("visibility: starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	counts := make([]int, len(steps))
	for i, s := range steps {
		roots, err := collectRoots(ctx, tx, s.selectSQL, s.selectArgs)
		if err != nil {
			return err
		}
		counts[i] = len(roots)

		for _, root := range roots {
			for _, mut := range s.mutations {
				args, err := mut.kind.args(root)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, mut.stmt, args...); err != nil {
					return fmt.Errorf("visibility: updating root %s: %w", root, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("visibility: committing: %w", err)
	}

	for i, s := range steps {
		log.Printf("[visibility] %d %s", counts[i], s.rowPluralName)
	}
	return nil
}

func collectRoots(ctx context.Context, tx *sql.Tx, query string, args []any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("visibility: selecting roots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roots []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		roots = append(roots, uuid)
	}
	return roots, rows.Err()
}
