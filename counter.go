package grantor

import "context"

// The counting queries support "is it safe to revoke this grant" checks: a
// caller about to remove a group grant, a direct user grant, or a single
// membership edge asks how many distinct users would still hold a global
// permission with that one artifact gone. All of them count identities over
// the same union of direct grants and group-derived grants that
// GlobalPermissions resolves, with exactly one source suppressed. Anyone
// grants are never counted: eligibility through Anyone is visibility, not an
// identity holding the permission, and deleting the last identity grant is
// precisely what these checks exist to warn about.
//
// Counts are computed in the store without materializing member lists, and
// an excluded id that does not exist excludes nothing.

const countHoldersSQL = `
SELECT COUNT(1) FROM (
  SELECT gu.user_id AS id
    FROM groups_users gu
    JOIN group_grants gg ON gg.group_id = gu.group_id
   WHERE gg.organization_uuid = $1
     AND gg.permission = $2
     AND gg.component_uuid IS NULL
  UNION
  SELECT ug.user_id AS id
    FROM user_grants ug
   WHERE ug.organization_uuid = $1
     AND ug.permission = $2
     AND ug.component_uuid IS NULL
) holders`

// CountHolders returns the number of distinct users holding the global
// permission in the organization, directly or through a group.
func (r *Resolver) CountHolders(ctx context.Context, organizationUUID string, permission Permission) (int, error) {
	return r.countQuery(ctx, countHoldersSQL, organizationUUID, string(permission))
}

const countHoldersExcludingGroupSQL = `
SELECT COUNT(1) FROM (
  SELECT gu.user_id AS id
    FROM groups_users gu
    JOIN group_grants gg ON gg.group_id = gu.group_id
   WHERE gg.organization_uuid = $1
     AND gg.permission = $2
     AND gg.component_uuid IS NULL
     AND gg.group_id <> $3
  UNION
  SELECT ug.user_id AS id
    FROM user_grants ug
   WHERE ug.organization_uuid = $1
     AND ug.permission = $2
     AND ug.component_uuid IS NULL
) holders`

// CountHoldersExcludingGroup counts the distinct users that would still hold
// the global permission if every grant attributable to the group were
// removed. An unknown group id excludes nothing.
func (r *Resolver) CountHoldersExcludingGroup(ctx context.Context, organizationUUID string, permission Permission, excludedGroupID int64) (int, error) {
	return r.countQuery(ctx, countHoldersExcludingGroupSQL, organizationUUID, string(permission), excludedGroupID)
}

const countHoldersExcludingUserSQL = `
SELECT COUNT(1) FROM (
  SELECT gu.user_id AS id
    FROM groups_users gu
    JOIN group_grants gg ON gg.group_id = gu.group_id
   WHERE gg.organization_uuid = $1
     AND gg.permission = $2
     AND gg.component_uuid IS NULL
  UNION
  SELECT ug.user_id AS id
    FROM user_grants ug
   WHERE ug.organization_uuid = $1
     AND ug.permission = $2
     AND ug.component_uuid IS NULL
     AND ug.user_id <> $3
) holders`

// CountHoldersExcludingUser counts the distinct users that would still hold
// the global permission if the excluded user's direct grant were removed.
// The excluded user still counts through group memberships. An unknown user
// id excludes nothing.
func (r *Resolver) CountHoldersExcludingUser(ctx context.Context, organizationUUID string, permission Permission, excludedUserID int64) (int, error) {
	return r.countQuery(ctx, countHoldersExcludingUserSQL, organizationUUID, string(permission), excludedUserID)
}

// CountHoldersExcludingUserGrant is CountHoldersExcludingUser under the name
// used by grant-revocation callers: only the user's direct grant is ignored.
func (r *Resolver) CountHoldersExcludingUserGrant(ctx context.Context, organizationUUID string, permission Permission, excludedUserID int64) (int, error) {
	return r.CountHoldersExcludingUser(ctx, organizationUUID, permission, excludedUserID)
}

const countHoldersExcludingGroupMemberSQL = `
SELECT COUNT(1) FROM (
  SELECT gu.user_id AS id
    FROM groups_users gu
    JOIN group_grants gg ON gg.group_id = gu.group_id
   WHERE gg.organization_uuid = $1
     AND gg.permission = $2
     AND gg.component_uuid IS NULL
     AND (gu.group_id <> $3 OR gu.user_id <> $4)
  UNION
  SELECT ug.user_id AS id
    FROM user_grants ug
   WHERE ug.organization_uuid = $1
     AND ug.permission = $2
     AND ug.component_uuid IS NULL
) holders`

// CountHoldersExcludingGroupMember counts the distinct users that would
// still hold the global permission if the single membership edge
// (excludedGroupID, excludedUserID) were removed. The user still counts
// through a direct grant or any other group. An unknown edge excludes
// nothing.
func (r *Resolver) CountHoldersExcludingGroupMember(ctx context.Context, organizationUUID string, permission Permission, excludedGroupID, excludedUserID int64) (int, error) {
	return r.countQuery(ctx, countHoldersExcludingGroupMemberSQL, organizationUUID, string(permission), excludedGroupID, excludedUserID)
}

// countQuery runs a single-row count query.
func (r *Resolver) countQuery(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, mapError("count permission holders", err)
	}
	return count, nil
}
