package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/govern/internal/app"
	"github.com/aliuyar1234/govern/internal/config"
	"github.com/aliuyar1234/govern/internal/orgs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

type member struct {
	UserID       uuid.UUID
	MembershipID uuid.UUID
}

type orgFixture struct {
	ID      uuid.UUID
	Owner   member
	Members []member
}

// newServices wires the services without a job runner, so audit writes run
// inline and notifications are disabled.
func newServices(pool *pgxpool.Pool) *app.Services {
	return app.NewServices(pool, nil, nil, &config.Config{})
}

// seedActiveOrg inserts an ACTIVE organization with an ACTIVE owner and n
// ACTIVE members.
func seedActiveOrg(t *testing.T, pool *pgxpool.Pool, slug string, n int) *orgFixture {
	t.Helper()
	ctx := context.Background()

	owner := uuid.New()
	f := &orgFixture{}
	err := pool.QueryRow(ctx, `
		INSERT INTO orgs (name, slug, status, created_by_user_id)
		VALUES ($1, $2, 'ACTIVE', $3)
		RETURNING id
	`, slug, slug, owner).Scan(&f.ID)
	require.NoError(t, err)

	f.Owner = addMembership(t, pool, f.ID, owner, orgs.RoleOwner, orgs.MemberActive)
	for range n {
		f.Members = append(f.Members, addMembership(t, pool, f.ID, uuid.New(), orgs.RoleMember, orgs.MemberActive))
	}
	return f
}

func addMembership(t *testing.T, pool *pgxpool.Pool, orgID, userID uuid.UUID, role orgs.OrgRole, status orgs.MemberStatus) member {
	t.Helper()
	m := member{UserID: userID}
	err := pool.QueryRow(context.Background(), `
		INSERT INTO org_memberships (org_id, user_id, role, member_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, orgID, userID, role, status).Scan(&m.MembershipID)
	require.NoError(t, err)
	return m
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func randomUser() uuid.UUID {
	return uuid.New()
}
