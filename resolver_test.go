package grantor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/grantor"
	"github.com/pthm/grantor/internal/testutil"
)

func TestGlobalPermissions_LoggedInUser(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	user := f.User()
	group1 := f.Group(org)
	group2 := f.Group(org)
	project := f.PrivateProject(org)

	f.Member(group1, user)
	f.GlobalUserGrant(org, user, "perm1")
	f.GlobalGroupGrant(org, group1, "perm2")
	f.GlobalAnyoneGrant(org, "perm3")

	// ignored: user is not a member of group2
	f.GlobalGroupGrant(org, group2, "ignored")
	// ignored: project scope
	f.ProjectUserGrant(project, user, "perm42")

	resolver := grantor.NewResolver(db)
	perms, err := resolver.GlobalPermissions(ctx, grantor.User(user), org)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1", "perm2", "perm3"}, perms)
}

func TestGlobalPermissions_Anonymous(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	user := f.User()
	group := f.Group(org)

	f.GlobalAnyoneGrant(org, "perm1")

	// ignored: anonymous callers only benefit from Anyone grants
	f.GlobalUserGrant(org, user, "ignored")
	f.GlobalGroupGrant(org, group, "ignored")

	resolver := grantor.NewResolver(db)
	perms, err := resolver.GlobalPermissions(ctx, grantor.Anonymous(), org)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1"}, perms)
}

func TestGlobalPermissions_UnknownOrganizationIsEmpty(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	f.GlobalAnyoneGrant(org, "perm1")

	resolver := grantor.NewResolver(db)

	perms, err := resolver.GlobalPermissions(ctx, grantor.Anonymous(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, perms)

	perms, err = resolver.GlobalPermissions(ctx, grantor.User(f.User()), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestGlobalPermissions_OtherOrganizationsIgnored(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org1 := f.Organization()
	org2 := f.Organization()
	user := f.User()
	f.GlobalUserGrant(org1, user, "perm1")
	f.GlobalUserGrant(org2, user, "perm2")

	resolver := grantor.NewResolver(db)
	perms, err := resolver.GlobalPermissions(ctx, grantor.User(user), org1)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1"}, perms)
}

func TestOrganizationsWithPermission(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	// org1: through group membership. org2: direct grant.
	// org3: holds another permission only.
	org1 := f.Organization()
	org2 := f.Organization()
	org3 := f.Organization()
	user := f.User()
	group := f.Group(org1)
	f.Member(group, user)
	f.GlobalGroupGrant(org1, group, "scan")
	f.GlobalUserGrant(org2, user, "scan")
	f.GlobalUserGrant(org3, user, "gateadmin")

	// project-scoped grants never count
	project := f.PrivateProject(org3)
	f.ProjectUserGrant(project, user, "scan")

	resolver := grantor.NewResolver(db)
	orgs, err := resolver.OrganizationsWithPermission(ctx, user, "scan")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{org1, org2}, orgs)
}

func TestOrganizationsWithPermission_IgnoresAnyoneGrants(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	user := f.User()
	f.GlobalAnyoneGrant(org, "scan")
	f.GlobalUserGrant(org, user, "gateadmin")

	resolver := grantor.NewResolver(db)
	orgs, err := resolver.OrganizationsWithPermission(ctx, user, "scan")
	require.NoError(t, err)
	require.Empty(t, orgs)
}

func TestOrganizationsWithPermission_UnknownUserIsEmpty(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	f.GlobalUserGrant(org, f.User(), "admin")

	resolver := grantor.NewResolver(db)
	orgs, err := resolver.OrganizationsWithPermission(ctx, -1, "admin")
	require.NoError(t, err)
	require.Empty(t, orgs)
}

func TestHasGlobalPermission(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	user := f.User()
	f.GlobalUserGrant(org, user, "admin")

	resolver := grantor.NewResolver(db)

	ok, err := resolver.HasGlobalPermission(ctx, grantor.User(user), org, "admin")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasGlobalPermission(ctx, grantor.User(user), org, "scan")
	require.NoError(t, err)
	require.False(t, ok)

	// case-sensitive, exact match
	ok, err = resolver.HasGlobalPermission(ctx, grantor.User(user), org, "Admin")
	require.NoError(t, err)
	require.False(t, ok)

	// the empty string is an ordinary value that matches no grant
	ok, err = resolver.HasGlobalPermission(ctx, grantor.User(user), org, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecisionOverridesBypassStorage(t *testing.T) {
	ctx := context.Background()

	// A nil Querier proves the store is never touched.
	allow := grantor.NewResolver(nil, grantor.WithDecision(grantor.DecisionAllow))
	ok, err := allow.HasGlobalPermission(ctx, grantor.Anonymous(), "org", "admin")
	require.NoError(t, err)
	require.True(t, ok)

	deny := grantor.NewResolver(nil, grantor.WithDecision(grantor.DecisionDeny))
	ok, err = deny.HasProjectPermission(ctx, grantor.User(1), "project", "admin")
	require.NoError(t, err)
	require.False(t, ok)

	perms, err := deny.GlobalPermissions(ctx, grantor.User(1), "org")
	require.NoError(t, err)
	require.Empty(t, perms)

	uuids, err := allow.FilterAuthorizedProjects(ctx, []string{"a", "b"}, grantor.Anonymous(), "user")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, uuids)

	ids, err := deny.FilterAuthorizedUsers(ctx, []int64{1, 2}, "user", "project")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestResolverWithCacheServesRepeatedLookups(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	user := f.User()
	f.GlobalUserGrant(org, user, "perm1")

	cache := grantor.NewCache()
	resolver := grantor.NewResolver(db, grantor.WithCache(cache))

	perms, err := resolver.GlobalPermissions(ctx, grantor.User(user), org)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1"}, perms)

	// A grant added mid-request is not observed through the cache.
	f.GlobalUserGrant(org, user, "perm2")
	perms, err = resolver.GlobalPermissions(ctx, grantor.User(user), org)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1"}, perms)

	cache.Clear()
	perms, err = resolver.GlobalPermissions(ctx, grantor.User(user), org)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"perm1", "perm2"}, perms)
}
