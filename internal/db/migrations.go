package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aliuyar1234/govern/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrationLockKey serialises concurrent migrators (several replicas booting at once).
const migrationLockKey int64 = 0x676f7665726e

// RunMigrations applies all pending database migrations
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	files, err := migrationFiles()
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := conn.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, name := range files {
		if applied[name] {
			log.Debug().Str("migration", name).Msg("Migration already applied, skipping")
			continue
		}

		content, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("Applying migration")

		// The simple protocol runs multi-statement files; BEGIN/COMMIT keeps
		// the schema change and its bookkeeping row together.
		script := "BEGIN;\n" + string(content) + "\nINSERT INTO schema_migrations (version) VALUES ('" + name + "');\nCOMMIT;"
		if _, err := conn.Conn().PgConn().Exec(ctx, script).ReadAll(); err != nil {
			_, _ = conn.Exec(context.Background(), "ROLLBACK")
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	log.Info().Int("available", len(files)).Msg("All migrations applied successfully")
	return nil
}

// migrationFiles returns the embedded .sql files in lexical order.
func migrationFiles() ([]string, error) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}

	sort.Strings(names)
	return names, nil
}
