package grantor

import (
	"context"
	"log"
	"sync"
)

// schemaValidation holds the process-wide validation state.
// Validation runs once per process on the first NewResolver call.
var schemaValidation struct {
	once sync.Once
	done bool
}

// validateSchema performs one-time schema validation on first Resolver
// creation. It checks for common setup issues and logs warnings (does not
// fail), so applications can start before the grant store is migrated.
//
// Validated conditions:
//   - the group_grants table exists
//   - the components table exists
func validateSchema(q Querier) {
	schemaValidation.once.Do(func() {
		ctx := context.Background()

		var count int
		err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM group_grants").Scan(&count)
		if err != nil {
			if sqlState(err) == pgUndefinedTable {
				log.Printf("[grantor] WARNING: group_grants table not found. Run 'grantor migrate' to create the grant store schema.")
			} else {
				log.Printf("[grantor] WARNING: Error checking group_grants: %v", err)
			}
			schemaValidation.done = true
			return
		}

		err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM components WHERE private").Scan(&count)
		if err != nil {
			if sqlState(err) == pgUndefinedTable {
				log.Printf("[grantor] WARNING: components table not found. Run 'grantor migrate' to create the grant store schema.")
			}
			// Other errors might be transient, don't warn
		}

		schemaValidation.done = true
	})
}

// Resolver computes effective permission sets and authorization decisions
// against the grant store. Every operation is read-only and issues a bounded
// number of queries (one per candidate chunk for the batch filters, one
// otherwise); the Resolver holds no mutable state beyond the database handle,
// optional cache, and decision override.
//
// Resolvers are lightweight and safe to create per-request. The database
// handle can be *sql.DB, *sql.Tx, or *sql.Conn, so resolution can observe
// uncommitted grant changes within transactions.
//
// Schema validation runs once per process on the first NewResolver call with
// a non-nil Querier. Validation issues are logged as warnings but do not
// prevent Resolver creation.
type Resolver struct {
	q        Querier
	cache    Cache
	decision Decision
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables caching of resolved permission sets.
// Caching is safe across goroutines but scoped to a single Resolver
// instance. For request-scoped caching, create a new Resolver per request
// with a request-scoped cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithDecision sets a decision override that bypasses grant-store checks.
// Use DecisionAllow for admin tools or testing authorized paths.
// Use DecisionDeny for testing unauthorized paths.
func WithDecision(d Decision) Option {
	return func(r *Resolver) {
		r.decision = d
	}
}

// NewResolver creates a resolver that works with *sql.DB, *sql.Tx, or
// *sql.Conn. Options allow callers to enable caching or decision overrides.
func NewResolver(q Querier, opts ...Option) *Resolver {
	r := &Resolver{
		q:        q,
		decision: DecisionUnset,
	}
	for _, opt := range opts {
		opt(r)
	}

	// Validate schema once per process (non-blocking, logs warnings)
	if q != nil {
		validateSchema(q)
	}

	return r
}

const globalPermissionsOfUserSQL = `
SELECT gg.permission
  FROM group_grants gg
  LEFT JOIN groups_users gu ON gu.group_id = gg.group_id
 WHERE gg.organization_uuid = $1
   AND gg.component_uuid IS NULL
   AND (gg.group_id IS NULL OR gu.user_id = $2)
UNION
SELECT ug.permission
  FROM user_grants ug
 WHERE ug.organization_uuid = $1
   AND ug.component_uuid IS NULL
   AND ug.user_id = $2`

const globalPermissionsOfAnonymousSQL = `
SELECT gg.permission
  FROM group_grants gg
 WHERE gg.organization_uuid = $1
   AND gg.component_uuid IS NULL
   AND gg.group_id IS NULL`

// GlobalPermissions returns the distinct global permissions the principal
// holds in the organization.
//
// For a user this is the union of direct grants, grants to groups the user
// belongs to, and Anyone grants: anonymous-only permissions are additionally
// available to logged-in callers. For Anonymous it is the Anyone grants
// alone. An unknown organization or user yields an empty set.
func (r *Resolver) GlobalPermissions(ctx context.Context, principal Principal, organizationUUID string) ([]Permission, error) {
	if r.decision == DecisionDeny {
		return nil, nil
	}
	// DecisionAllow falls through - the full permission universe cannot be
	// enumerated from here.

	scope := "global:" + organizationUUID
	if r.cache != nil {
		if perms, ok := r.cache.Get(principal, scope); ok {
			return perms, nil
		}
	}

	var (
		perms []Permission
		err   error
	)
	if userID, ok := principal.UserID(); ok {
		perms, err = r.queryPermissions(ctx, globalPermissionsOfUserSQL, organizationUUID, userID)
	} else {
		perms, err = r.queryPermissions(ctx, globalPermissionsOfAnonymousSQL, organizationUUID)
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(principal, scope, perms)
	}
	return perms, nil
}

// HasGlobalPermission reports whether the principal holds the global
// permission in the organization. Honors the Resolver decision override.
func (r *Resolver) HasGlobalPermission(ctx context.Context, principal Principal, organizationUUID string, permission Permission) (bool, error) {
	if r.decision != DecisionUnset {
		return r.decision == DecisionAllow, nil
	}

	perms, err := r.GlobalPermissions(ctx, principal, organizationUUID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

const organizationsWithPermissionSQL = `
SELECT ug.organization_uuid
  FROM user_grants ug
 WHERE ug.user_id = $1
   AND ug.permission = $2
   AND ug.component_uuid IS NULL
UNION
SELECT gg.organization_uuid
  FROM group_grants gg
  JOIN groups_users gu ON gu.group_id = gg.group_id
 WHERE gu.user_id = $1
   AND gg.permission = $2
   AND gg.component_uuid IS NULL`

// OrganizationsWithPermission returns the uuids of the organizations in
// which the user holds the global permission, through a direct grant or a
// group membership. Anyone grants are deliberately excluded: this answers
// what the specific identity has earned, not what is publicly available.
// An unknown user yields an empty set.
func (r *Resolver) OrganizationsWithPermission(ctx context.Context, userID int64, permission Permission) ([]string, error) {
	if r.decision == DecisionDeny {
		return nil, nil
	}

	rows, err := r.q.QueryContext(ctx, organizationsWithPermissionSQL, userID, string(permission))
	if err != nil {
		return nil, mapError("organizations with permission", err)
	}
	defer func() { _ = rows.Close() }()

	var uuids []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		uuids = append(uuids, uuid)
	}
	return uuids, rows.Err()
}

// queryPermissions runs a permission-returning query and collects the rows.
func (r *Resolver) queryPermissions(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("resolve permissions", err)
	}
	defer func() { _ = rows.Close() }()

	var perms []Permission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, Permission(p))
	}
	return perms, rows.Err()
}
