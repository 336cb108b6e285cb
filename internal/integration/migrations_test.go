package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/govern/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	for _, table := range []string{
		"orgs", "org_memberships", "org_positions", "org_consents", "org_applications", "audit_log",
		"meetings", "resolutions", "agenda_items", "meeting_remote_voters", "meeting_attendance",
		"votes", "ballots",
	} {
		count := countRows(t, pool, `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table)
		require.Equal(t, 1, count, table)
	}
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	before := countRows(t, pool, `SELECT COUNT(*) FROM schema_migrations`)
	require.NoError(t, db.RunMigrations(context.Background(), pool))
	require.Equal(t, before, countRows(t, pool, `SELECT COUNT(*) FROM schema_migrations`))
}
