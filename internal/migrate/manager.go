// Package migrate applies the schema and seed SQL files shipped under ops/migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"
)

// Runner executes SQL migrations and seed files stored on disk.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over the given directories.
func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies all pending .up.sql migrations in lexical order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return err
	}
	files, err := listSQL(r.migrationsDir, ".up.sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, filepath.Join(r.migrationsDir, name)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if err := r.record(ctx, migrationsTable, name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	history, err := r.history(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := filepath.Join(r.migrationsDir, strings.TrimSuffix(last, ".up.sql")+".down.sql")
	if _, err := os.Stat(downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := r.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last)
	return err
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx, migrationsTable)
}

// Seed applies seed files once each.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, seedsTable)
	if err != nil {
		return err
	}
	files, err := listSQL(r.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, name := range files {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, filepath.Join(r.seedsDir, name)); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, seedsTable, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			);`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs every statement of a file inside one transaction.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := r.history(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (r *Runner) history(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func listSQL(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	inString := false
	for _, r := range sql {
		current.WriteRune(r)
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				stmts = append(stmts, current.String())
				current.Reset()
			}
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
