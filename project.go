package grantor

import (
	"context"

	"github.com/lib/pq"
)

// filterChunkSize bounds the candidate ids bound into one query. Candidate
// sets can be as large as a search-result page of projects, so the filters
// batch them rather than issuing one query per id, and chunk the batches to
// stay under parameter-size limits of the storage layer.
const filterChunkSize = 1000

const projectPermissionsOfUserSQL = `
SELECT ug.permission
  FROM user_grants ug
  JOIN components p ON p.uuid = ug.component_uuid
 WHERE p.uuid = $1
   AND ug.user_id = $2
UNION
SELECT gg.permission
  FROM group_grants gg
  JOIN groups_users gu ON gu.group_id = gg.group_id
  JOIN components p ON p.uuid = gg.component_uuid
 WHERE p.uuid = $1
   AND gu.user_id = $2
UNION
SELECT gg.permission
  FROM group_grants gg
  JOIN components p ON p.uuid = gg.component_uuid
 WHERE p.uuid = $1
   AND gg.group_id IS NULL
   AND NOT p.private`

const projectPermissionsOfAnonymousSQL = `
SELECT gg.permission
  FROM group_grants gg
  JOIN components p ON p.uuid = gg.component_uuid
 WHERE p.uuid = $1
   AND gg.group_id IS NULL
   AND NOT p.private`

// ProjectPermissions returns the distinct permissions the principal holds on
// the project root identified by projectUUID.
//
// On a public project the result is the union of Anyone grants and, for a
// user, direct and group grants. On a private project Anyone grants are
// never honored, whether or not rows exist; Anonymous resolves to the empty
// set. An unknown project yields an empty set.
func (r *Resolver) ProjectPermissions(ctx context.Context, principal Principal, projectUUID string) ([]Permission, error) {
	if r.decision == DecisionDeny {
		return nil, nil
	}

	scope := "project:" + projectUUID
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
		perms, err = r.queryPermissions(ctx, projectPermissionsOfUserSQL, projectUUID, userID)
	} else {
		perms, err = r.queryPermissions(ctx, projectPermissionsOfAnonymousSQL, projectUUID)
	}
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(principal, scope, perms)
	}
	return perms, nil
}

// HasProjectPermission reports whether the principal holds the permission on
// the project root. Honors the Resolver decision override.
func (r *Resolver) HasProjectPermission(ctx context.Context, principal Principal, projectUUID string, permission Permission) (bool, error) {
	if r.decision != DecisionUnset {
		return r.decision == DecisionAllow, nil
	}

	perms, err := r.ProjectPermissions(ctx, principal, projectUUID)
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

const authorizedProjectsOfUserSQL = `
SELECT p.uuid
  FROM components p
 WHERE p.uuid = ANY($1)
   AND (
     EXISTS (
       SELECT 1 FROM user_grants ug
        WHERE ug.component_uuid = p.uuid
          AND ug.user_id = $2
          AND ug.permission = $3)
     OR EXISTS (
       SELECT 1 FROM group_grants gg
         JOIN groups_users gu ON gu.group_id = gg.group_id
        WHERE gg.component_uuid = p.uuid
          AND gu.user_id = $2
          AND gg.permission = $3)
     OR (NOT p.private AND EXISTS (
       SELECT 1 FROM group_grants gg
        WHERE gg.component_uuid = p.uuid
          AND gg.group_id IS NULL
          AND gg.permission = $3))
   )`

const authorizedProjectsOfAnonymousSQL = `
SELECT p.uuid
  FROM components p
 WHERE p.uuid = ANY($1)
   AND NOT p.private
   AND EXISTS (
     SELECT 1 FROM group_grants gg
      WHERE gg.component_uuid = p.uuid
        AND gg.group_id IS NULL
        AND gg.permission = $2)`

// FilterAuthorizedProjects returns the subset of the candidate project roots
// on which the principal holds the permission, applying the
// ProjectPermissions visibility rules per project. Candidates are bound in
// bounded chunks, one query per chunk; an empty candidate set returns empty
// without touching storage. Unknown uuids are simply not part of the result.
func (r *Resolver) FilterAuthorizedProjects(ctx context.Context, projectUUIDs []string, principal Principal, permission Permission) ([]string, error) {
	if len(projectUUIDs) == 0 {
		return nil, nil
	}
	switch r.decision {
	case DecisionDeny:
		return nil, nil
	case DecisionAllow:
		// Every check is granted, and here the universe is the candidate set.
		return append([]string(nil), projectUUIDs...), nil
	}

	var authorized []string
	for _, chunk := range chunk(projectUUIDs, filterChunkSize) {
		var err error
		if userID, ok := principal.UserID(); ok {
			authorized, err = r.appendStrings(ctx, authorized, authorizedProjectsOfUserSQL,
				pq.Array(chunk), userID, string(permission))
		} else {
			authorized, err = r.appendStrings(ctx, authorized, authorizedProjectsOfAnonymousSQL,
				pq.Array(chunk), string(permission))
		}
		if err != nil {
			return nil, err
		}
	}
	return authorized, nil
}

const anyoneGrantOnPublicProjectSQL = `
SELECT EXISTS (
  SELECT 1
    FROM group_grants gg
    JOIN components p ON p.uuid = gg.component_uuid
   WHERE p.uuid = $1
     AND NOT p.private
     AND gg.group_id IS NULL
     AND gg.permission = $2)`

const authorizedUsersSQL = `
SELECT ug.user_id
  FROM user_grants ug
 WHERE ug.component_uuid = $1
   AND ug.permission = $2
   AND ug.user_id = ANY($3)
UNION
SELECT gu.user_id
  FROM group_grants gg
  JOIN groups_users gu ON gu.group_id = gg.group_id
 WHERE gg.component_uuid = $1
   AND gg.permission = $2
   AND gu.user_id = ANY($3)`

// FilterAuthorizedUsers returns the subset of the candidate user ids that
// hold the permission on the project root, through a direct grant or a
// group membership.
//
// If the project is public and an Anyone grant exists for the permission,
// every candidate id is authorized - including ids with no user row, since
// eligibility is universal rather than per-identity. Callers that care must
// pre-filter to existing users. Otherwise candidate ids without grants,
// including nonexistent ones, are simply omitted. An empty candidate set
// returns empty without touching storage.
func (r *Resolver) FilterAuthorizedUsers(ctx context.Context, userIDs []int64, permission Permission, projectUUID string) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	switch r.decision {
	case DecisionDeny:
		return nil, nil
	case DecisionAllow:
		return append([]int64(nil), userIDs...), nil
	}

	var anyoneEligible bool
	err := r.q.QueryRowContext(ctx, anyoneGrantOnPublicProjectSQL, projectUUID, string(permission)).Scan(&anyoneEligible)
	if err != nil {
		return nil, mapError("filter authorized users", err)
	}
	if anyoneEligible {
		return append([]int64(nil), userIDs...), nil
	}

	var authorized []int64
	for _, chunk := range chunk(userIDs, filterChunkSize) {
		rows, err := r.q.QueryContext(ctx, authorizedUsersSQL,
			projectUUID, string(permission), pq.Array(chunk))
		if err != nil {
			return nil, mapError("filter authorized users", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			authorized = append(authorized, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return authorized, nil
}

// appendStrings runs a string-returning query and appends the rows to dst.
func (r *Resolver) appendStrings(ctx context.Context, dst []string, query string, args ...any) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("filter authorized projects", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		dst = append(dst, s)
	}
	return dst, rows.Err()
}

// chunk splits items into slices of at most size elements. The returned
// slices alias the input.
func chunk[T any](items []T, size int) [][]T {
	if len(items) <= size {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		chunks = append(chunks, items[:size])
		items = items[size:]
	}
	return append(chunks, items)
}
