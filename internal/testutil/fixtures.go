package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// seq feeds unique logins, group names, and component keys across all
// fixtures in a test binary.
var seq atomic.Int64

func next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

// Fixtures inserts grant-store rows for tests. Failures fail the test
// immediately, so test bodies read as straight-line setup.
type Fixtures struct {
	tb  testing.TB
	ctx context.Context
	db  *sql.DB
}

// NewFixtures creates a Fixtures helper bound to the test and database.
func NewFixtures(tb testing.TB, db *sql.DB) *Fixtures {
	return &Fixtures{tb: tb, ctx: context.Background(), db: db}
}

func (f *Fixtures) exec(query string, args ...any) {
	f.tb.Helper()
	_, err := f.db.ExecContext(f.ctx, query, args...)
	require.NoError(f.tb, err)
}

// Organization inserts an organization and returns its uuid.
func (f *Fixtures) Organization() string {
	f.tb.Helper()
	orgUUID := uuid.NewString()
	f.exec("INSERT INTO organizations (uuid, kee, name) VALUES ($1, $2, $2)",
		orgUUID, next("org"))
	return orgUUID
}

// User inserts a user and returns its id.
func (f *Fixtures) User() int64 {
	f.tb.Helper()
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		"INSERT INTO users (login) VALUES ($1) RETURNING id", next("user")).Scan(&id)
	require.NoError(f.tb, err)
	return id
}

// Group inserts a group in the organization and returns its id.
func (f *Fixtures) Group(orgUUID string) int64 {
	f.tb.Helper()
	var id int64
	err := f.db.QueryRowContext(f.ctx,
		"INSERT INTO groups (organization_uuid, name) VALUES ($1, $2) RETURNING id",
		orgUUID, next("group")).Scan(&id)
	require.NoError(f.tb, err)
	return id
}

// Member adds users to a group.
func (f *Fixtures) Member(groupID int64, userIDs ...int64) {
	f.tb.Helper()
	for _, userID := range userIDs {
		f.exec("INSERT INTO groups_users (group_id, user_id) VALUES ($1, $2)", groupID, userID)
	}
}

// PublicProject inserts a public project root and returns its uuid.
func (f *Fixtures) PublicProject(orgUUID string) string {
	return f.root(orgUUID, "project", false)
}

// PrivateProject inserts a private project root and returns its uuid.
func (f *Fixtures) PrivateProject(orgUUID string) string {
	return f.root(orgUUID, "project", true)
}

// View inserts a view root and returns its uuid.
func (f *Fixtures) View(orgUUID string, private bool) string {
	return f.root(orgUUID, "view", private)
}

func (f *Fixtures) root(orgUUID, qualifier string, private bool) string {
	f.tb.Helper()
	rootUUID := uuid.NewString()
	f.exec(`INSERT INTO components (uuid, kee, organization_uuid, root_uuid, qualifier, private)
	        VALUES ($1, $2, $3, $1, $4, $5)`,
		rootUUID, next("cmp"), orgUUID, qualifier, private)
	return rootUUID
}

// Descendant inserts a non-root component under the given root, with its own
// private flag (possibly inconsistent with the root's, as legacy data was).
func (f *Fixtures) Descendant(rootUUID string, private bool) string {
	f.tb.Helper()
	var orgUUID string
	err := f.db.QueryRowContext(f.ctx,
		"SELECT organization_uuid FROM components WHERE uuid = $1", rootUUID).Scan(&orgUUID)
	require.NoError(f.tb, err)

	cmpUUID := uuid.NewString()
	f.exec(`INSERT INTO components (uuid, kee, organization_uuid, root_uuid, qualifier, private)
	        VALUES ($1, $2, $3, $4, 'file', $5)`,
		cmpUUID, next("cmp"), orgUUID, rootUUID, private)
	return cmpUUID
}

// OrphanDescendant inserts a non-root component whose root_uuid names no
// existing component row. Legacy stores contain such rows after botched
// deletes; they belong to no tree.
func (f *Fixtures) OrphanDescendant(orgUUID string, private bool) string {
	f.tb.Helper()
	cmpUUID := uuid.NewString()
	f.exec(`INSERT INTO components (uuid, kee, organization_uuid, root_uuid, qualifier, private)
	        VALUES ($1, $2, $3, $4, 'file', $5)`,
		cmpUUID, next("cmp"), orgUUID, uuid.NewString(), private)
	return cmpUUID
}

// GlobalUserGrant grants a global permission to a user.
func (f *Fixtures) GlobalUserGrant(orgUUID string, userID int64, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO user_grants (organization_uuid, user_id, permission, component_uuid)
	        VALUES ($1, $2, $3, NULL)`, orgUUID, userID, permission)
}

// GlobalGroupGrant grants a global permission to a group.
func (f *Fixtures) GlobalGroupGrant(orgUUID string, groupID int64, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO group_grants (organization_uuid, group_id, permission, component_uuid)
	        VALUES ($1, $2, $3, NULL)`, orgUUID, groupID, permission)
}

// GlobalAnyoneGrant grants a global permission to Anyone.
func (f *Fixtures) GlobalAnyoneGrant(orgUUID string, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO group_grants (organization_uuid, group_id, permission, component_uuid)
	        VALUES ($1, NULL, $2, NULL)`, orgUUID, permission)
}

// ProjectUserGrant grants a project permission to a user.
func (f *Fixtures) ProjectUserGrant(projectUUID string, userID int64, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO user_grants (organization_uuid, user_id, permission, component_uuid)
	        SELECT organization_uuid, $2, $3, uuid FROM components WHERE uuid = $1`,
		projectUUID, userID, permission)
}

// ProjectGroupGrant grants a project permission to a group.
func (f *Fixtures) ProjectGroupGrant(projectUUID string, groupID int64, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO group_grants (organization_uuid, group_id, permission, component_uuid)
	        SELECT organization_uuid, $2, $3, uuid FROM components WHERE uuid = $1`,
		projectUUID, groupID, permission)
}

// ProjectAnyoneGrant grants a project permission to Anyone.
func (f *Fixtures) ProjectAnyoneGrant(projectUUID string, permission string) {
	f.tb.Helper()
	f.exec(`INSERT INTO group_grants (organization_uuid, group_id, permission, component_uuid)
	        SELECT organization_uuid, NULL, $2, uuid FROM components WHERE uuid = $1`,
		projectUUID, permission)
}

// CountRows returns the number of rows in a table matching the condition.
func (f *Fixtures) CountRows(table, where string, args ...any) int {
	f.tb.Helper()
	var count int
	err := f.db.QueryRowContext(f.ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), args...).Scan(&count)
	require.NoError(f.tb, err)
	return count
}

// IsPrivate returns the private flag of a component.
func (f *Fixtures) IsPrivate(componentUUID string) bool {
	f.tb.Helper()
	var private bool
	err := f.db.QueryRowContext(f.ctx,
		"SELECT private FROM components WHERE uuid = $1", componentUUID).Scan(&private)
	require.NoError(f.tb, err)
	return private
}
