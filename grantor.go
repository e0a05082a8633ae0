// Package grantor resolves effective permissions against a relational
// grant store in PostgreSQL.
//
// Permissions are granted in two scopes. Global grants apply to a whole
// organization; project grants apply to one project (or view) tree. A grant
// targets a user, a group, or the universal "Anyone" principal. Project
// trees carry a private flag on their root: while a project is public,
// Anyone grants on it apply to every caller, while it is private they are
// inert regardless of the rows present.
//
// # Core Concepts
//
// A Principal identifies the caller: either Anonymous or a registered user.
//
//	p := grantor.User(123)
//	perms, err := resolver.ProjectPermissions(ctx, p, projectUUID)
//
// # Basic Usage
//
//	resolver := grantor.NewResolver(db)
//	perms, err := resolver.GlobalPermissions(ctx, grantor.User(123), orgUUID)
//
// # Transaction Support
//
// The Resolver works with *sql.DB, *sql.Tx, or *sql.Conn, so resolution can
// observe uncommitted grant changes within a transaction:
//
//	tx, _ := db.BeginTx(ctx, nil)
//	resolver := grantor.NewResolver(tx)
//	ok, _ := resolver.HasProjectPermission(ctx, p, projectUUID, "admin")
//	tx.Commit()
//
// # Caching
//
// Resolution is stateless. For repeated checks within one request, attach a
// request-scoped cache:
//
//	cache := grantor.NewCache(grantor.WithTTL(time.Minute))
//	resolver := grantor.NewResolver(db, grantor.WithCache(cache))
//
// # Schema Management
//
// The grant-store tables are created by pkg/store. The one-shot visibility
// consistency migration lives in pkg/visibility.
package grantor

import (
	"context"
	"database/sql"
	"strconv"
)

// Permission names a capability, such as a project role ("user", "admin")
// or an organization-wide administrative permission ("scan"). Comparison is
// exact and case-sensitive; an empty permission is an ordinary value that
// matches no grant.
type Permission string

// String returns the permission name.
func (p Permission) String() string {
	return string(p)
}

// Well-known permissions. The grant store accepts arbitrary permission
// strings; these are the ones the engine itself has an opinion about.
const (
	// PermissionUser is browse-level access to a project.
	PermissionUser Permission = "user"

	// PermissionCodeviewer is source-level read access to a project.
	PermissionCodeviewer Permission = "codeviewer"

	// PermissionAdmin is administrative access, global or per project.
	PermissionAdmin Permission = "admin"

	// PermissionScan allows submitting analysis reports.
	PermissionScan Permission = "scan"
)

// ReadPermissions is the read family: the permissions that constitute basic
// browse access. A public project implies nothing about other permissions,
// but the visibility migration classifies roots by the presence of an
// Anyone grant for one of these.
var ReadPermissions = []Permission{PermissionUser, PermissionCodeviewer}

// principalKind discriminates the Principal variant.
type principalKind int

const (
	principalAnonymous principalKind = iota
	principalUser
)

// Principal identifies the caller of a resolution: either the anonymous
// principal or a registered user. It is a closed value type so that every
// resolver branch handles both cases explicitly rather than testing a
// nullable user id.
//
// The zero value is Anonymous.
type Principal struct {
	kind   principalKind
	userID int64
}

// Anonymous returns the anonymous principal. Anonymous callers hold exactly
// the permissions granted to Anyone (gated by project visibility in project
// scope).
func Anonymous() Principal {
	return Principal{kind: principalAnonymous}
}

// User returns the principal for a registered user id. Unknown ids resolve
// like any user with no grants and no group memberships.
func User(id int64) Principal {
	return Principal{kind: principalUser, userID: id}
}

// IsAnonymous reports whether the principal is the anonymous caller.
func (p Principal) IsAnonymous() bool {
	return p.kind == principalAnonymous
}

// UserID returns the user id and true for a user principal, or 0 and false
// for Anonymous.
func (p Principal) UserID() (int64, bool) {
	if p.kind != principalUser {
		return 0, false
	}
	return p.userID, true
}

// String returns "anonymous" or "user:<id>", used in logging and cache keys.
func (p Principal) String() string {
	if p.kind == principalAnonymous {
		return "anonymous"
	}
	return "user:" + strconv.FormatInt(p.userID, 10)
}

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
//
// The minimal interface allows the Resolver to work in transaction contexts
// without requiring a full database connection, so permission resolution can
// see uncommitted grant changes:
//
//	tx.Exec("INSERT INTO user_grants ...")
//	perms, _ := resolver.ProjectPermissions(ctx, p, projectUUID) // sees new grant
//	tx.Commit()
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext. Only the migrations in pkg/store
// and pkg/visibility mutate the grant store; runtime resolution never needs
// it. Separating the interfaces keeps the Resolver dependency minimal.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
