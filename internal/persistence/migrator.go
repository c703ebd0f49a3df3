package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"CDPTreasury/internal/observability"
)

// Migrator applies the SQL files in migrationsDir against the database.
// Files follow the {version}_{name}.up.sql / {version}_{name}.down.sql
// convention; applied versions are recorded in public.schema_migrations so
// reruns are no-ops.
type Migrator struct {
	db            *sql.DB
	migrationsDir string
	log           zerolog.Logger
}

func NewMigrator(db *sql.DB, migrationsDir string) *Migrator {
	return &Migrator{
		db:            db,
		migrationsDir: migrationsDir,
		log:           observability.NewLogger("migrator"),
	}
}

// Up applies every up-migration not yet recorded, in version order. Each
// file runs in its own transaction together with its bookkeeping row, so a
// failed migration leaves the schema at the previous version.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	files, err := m.sortedFiles(".up.sql")
	if err != nil {
		return fmt.Errorf("scan %s: %w", m.migrationsDir, err)
	}

	for _, name := range files {
		if applied[versionOf(name)] {
			continue
		}
		if err := m.applyUp(ctx, name); err != nil {
			return err
		}
		m.log.Info().Str("file", name).Msg("migration applied")
	}
	return nil
}

// Down reverts the most recently applied migration, if any.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var version, upName string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, filename FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &upName)
	if err == sql.ErrNoRows {
		m.log.Info().Msg("nothing to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find latest version: %w", err)
	}

	downName := strings.Replace(upName, ".up.sql", ".down.sql", 1)
	sqlText, err := os.ReadFile(filepath.Join(m.migrationsDir, downName))
	if err != nil {
		return fmt.Errorf("read %s: %w", downName, err)
	}

	err = m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
			return fmt.Errorf("exec %s: %w", downName, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM public.schema_migrations WHERE version = $1`, version,
		); err != nil {
			return fmt.Errorf("delete version %s: %w", version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.Info().Str("file", downName).Msg("migration rolled back")
	return nil
}

func (m *Migrator) applyUp(ctx context.Context, name string) error {
	sqlText, err := os.ReadFile(filepath.Join(m.migrationsDir, name))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	return m.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(sqlText)); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
			versionOf(name), name,
		); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		return nil
	})
}

func (m *Migrator) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// sortedFiles lists migration files with the given suffix in lexical order.
// Zero-padded version prefixes make lexical order equal version order.
func (m *Migrator) sortedFiles(suffix string) ([]string, error) {
	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func versionOf(filename string) string {
	version, _, ok := strings.Cut(filename, "_")
	if !ok {
		return filename
	}
	return version
}
