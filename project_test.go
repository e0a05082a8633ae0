package grantor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pthm/grantor"
	"github.com/pthm/grantor/internal/testutil"
)

func TestProjectPermissions_PublicProject(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PublicProject(org)
	user := f.User()
	group := f.Group(org)
	f.Member(group, user)

	f.ProjectUserGrant(project, user, "codeviewer")
	f.ProjectGroupGrant(project, group, "user")
	f.ProjectAnyoneGrant(project, "issueadmin")

	resolver := grantor.NewResolver(db)

	// Logged-in callers get Anyone grants on top of their own.
	perms, err := resolver.ProjectPermissions(ctx, grantor.User(user), project)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"codeviewer", "user", "issueadmin"}, perms)

	// Anonymous callers get the Anyone grants alone.
	perms, err = resolver.ProjectPermissions(ctx, grantor.Anonymous(), project)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"issueadmin"}, perms)
}

func TestProjectPermissions_PrivateProjectIgnoresAnyoneRows(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PrivateProject(org)
	user := f.User()
	group := f.Group(org)
	f.Member(group, user)

	f.ProjectUserGrant(project, user, "codeviewer")
	f.ProjectGroupGrant(project, group, "user")
	// Stale rows from before the project was made private: inert.
	f.ProjectAnyoneGrant(project, "user")
	f.ProjectAnyoneGrant(project, "issueadmin")

	resolver := grantor.NewResolver(db)

	perms, err := resolver.ProjectPermissions(ctx, grantor.User(user), project)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"codeviewer", "user"}, perms)

	perms, err = resolver.ProjectPermissions(ctx, grantor.Anonymous(), project)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestProjectPermissions_GroupOfOtherUserIgnored(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PrivateProject(org)
	user := f.User()
	group1 := f.Group(org)
	group2 := f.Group(org)
	f.Member(group1, user)

	f.ProjectGroupGrant(project, group1, "codeviewer")
	f.ProjectGroupGrant(project, group2, "issueadmin")

	resolver := grantor.NewResolver(db)
	perms, err := resolver.ProjectPermissions(ctx, grantor.User(user), project)
	require.NoError(t, err)
	require.ElementsMatch(t, []grantor.Permission{"codeviewer"}, perms)
}

func TestProjectPermissions_UnknownProjectIsEmpty(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	resolver := grantor.NewResolver(db)

	perms, err := resolver.ProjectPermissions(ctx, grantor.User(f.User()), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, perms)

	perms, err = resolver.ProjectPermissions(ctx, grantor.Anonymous(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestProjectPermissions_NoGrantsAuthorizesNobody(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	public := f.PublicProject(org)
	private := f.PrivateProject(org)
	user := f.User()

	resolver := grantor.NewResolver(db)
	for _, project := range []string{public, private} {
		perms, err := resolver.ProjectPermissions(ctx, grantor.User(user), project)
		require.NoError(t, err)
		require.Empty(t, perms)

		perms, err = resolver.ProjectPermissions(ctx, grantor.Anonymous(), project)
		require.NoError(t, err)
		require.Empty(t, perms)
	}
}

func TestFilterAuthorizedProjects_User(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project1 := f.PublicProject(org)
	project2 := f.PublicProject(org)
	project3 := f.PublicProject(org)
	user := f.User()
	group := f.Group(org)
	f.Member(group, user)

	f.ProjectGroupGrant(project1, group, "user")
	f.ProjectUserGrant(project2, user, "user")
	f.ProjectUserGrant(project3, user, "codeviewer")

	resolver := grantor.NewResolver(db)

	candidates := []string{project1, project2, project3}
	authorized, err := resolver.FilterAuthorizedProjects(ctx, candidates, grantor.User(user), "user")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{project1, project2}, authorized)

	// user does not hold "admin" anywhere
	authorized, err = resolver.FilterAuthorizedProjects(ctx, candidates, grantor.User(user), "admin")
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedProjects_AnonymousHonorsVisibility(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	public := f.PublicProject(org)
	private := f.PrivateProject(org)

	f.ProjectAnyoneGrant(public, "user")
	f.ProjectAnyoneGrant(private, "user") // inert on a private project

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedProjects(ctx, []string{public, private}, grantor.Anonymous(), "user")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{public}, authorized)
}

func TestFilterAuthorizedProjects_AnyoneGrantAlsoAuthorizesUsers(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	public := f.PublicProject(org)
	f.ProjectAnyoneGrant(public, "user")
	user := f.User()

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedProjects(ctx, []string{public}, grantor.User(user), "user")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{public}, authorized)
}

func TestFilterAuthorizedProjects_EmptyInputSkipsStorage(t *testing.T) {
	ctx := context.Background()

	// A nil Querier proves no query is issued for an empty candidate set.
	resolver := grantor.NewResolver(nil)
	authorized, err := resolver.FilterAuthorizedProjects(ctx, nil, grantor.User(1), "user")
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedProjects_UnknownUUIDsDropped(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PublicProject(org)
	user := f.User()
	f.ProjectUserGrant(project, user, "user")

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedProjects(ctx,
		[]string{project, "does-not-exist"}, grantor.User(user), "user")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{project}, authorized)
}

func TestFilterAuthorizedUsers_DirectAndGroupGrants(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PrivateProject(org)
	direct := f.User()
	viaGroup := f.User()
	outsider := f.User()
	group := f.Group(org)
	f.Member(group, viaGroup)

	f.ProjectUserGrant(project, direct, "user")
	f.ProjectGroupGrant(project, group, "user")

	resolver := grantor.NewResolver(db)

	candidates := []int64{direct, viaGroup, outsider}
	authorized, err := resolver.FilterAuthorizedUsers(ctx, candidates, "user", project)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{direct, viaGroup}, authorized)

	// other permission is not held
	authorized, err = resolver.FilterAuthorizedUsers(ctx, candidates, "admin", project)
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedUsers_AnyoneOnPublicProjectAuthorizesEveryCandidate(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PublicProject(org)
	f.ProjectAnyoneGrant(project, "user")
	known := f.User()

	resolver := grantor.NewResolver(db)

	// Eligibility is universal: every candidate id is returned, even ids
	// with no user row. Callers must pre-filter if that matters.
	candidates := []int64{known, 19_900, 19_901}
	authorized, err := resolver.FilterAuthorizedUsers(ctx, candidates, "user", project)
	require.NoError(t, err)
	require.ElementsMatch(t, candidates, authorized)

	// The Anyone grant is for "user" only.
	authorized, err = resolver.FilterAuthorizedUsers(ctx, candidates, "codeviewer", project)
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedUsers_AnyoneOnPrivateProjectIsInert(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PrivateProject(org)
	f.ProjectAnyoneGrant(project, "user")
	user := f.User()

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedUsers(ctx, []int64{user}, "user", project)
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedUsers_NonExistentUsersWithoutAnyoneGrant(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PublicProject(org)

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedUsers(ctx, []int64{19_990, 19_991}, "user", project)
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedUsers_EmptyInputSkipsStorage(t *testing.T) {
	ctx := context.Background()

	resolver := grantor.NewResolver(nil)
	authorized, err := resolver.FilterAuthorizedUsers(ctx, nil, "user", "project")
	require.NoError(t, err)
	require.Empty(t, authorized)
}

func TestFilterAuthorizedUsers_OtherProjectGrantsIgnored(t *testing.T) {
	db := testutil.DB(t)
	f := testutil.NewFixtures(t, db)
	ctx := context.Background()

	org := f.Organization()
	project := f.PublicProject(org)
	other := f.PublicProject(org)
	user := f.User()
	f.ProjectUserGrant(other, user, "admin")

	resolver := grantor.NewResolver(db)
	authorized, err := resolver.FilterAuthorizedUsers(ctx, []int64{user}, "admin", project)
	require.NoError(t, err)
	require.Empty(t, authorized)
}
