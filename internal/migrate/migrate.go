// Package migrate applies the embedded schema to MySQL or PostgreSQL.
// Files are applied in name order and recorded in schema_migrations, so
// running Up twice is a no-op.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed mysql/*.sql postgres/*.sql
var fs embed.FS

const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Files lists the migration files of a dialect in apply order.
func Files(dialect string) ([]string, error) {
	entries, err := fs.ReadDir(dialect)
	if err != nil {
		return nil, fmt.Errorf("unknown dialect %q: %w", dialect, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// Statements splits a migration into single statements.  Line comments are
// dropped; the files never put a semicolon inside a literal.
func Statements(src string) []string {
	var b strings.Builder
	for _, line := range strings.Split(src, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// runner hides the driver differences from up.
type runner interface {
	ensureTable(ctx context.Context) error
	applied(ctx context.Context, version string) (bool, error)
	apply(ctx context.Context, version string, stmts []string) error
}

func up(ctx context.Context, dialect string, r runner) ([]string, error) {
	files, err := Files(dialect)
	if err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var done []string
	for _, f := range files {
		ok, err := r.applied(ctx, f)
		if err != nil {
			return done, err
		}
		if ok {
			continue
		}
		b, err := fs.ReadFile(path.Join(dialect, f))
		if err != nil {
			return done, err
		}
		if err := r.apply(ctx, f, Statements(string(b))); err != nil {
			return done, fmt.Errorf("apply %s: %w", f, err)
		}
		done = append(done, f)
	}
	return done, nil
}

// UpMySQL applies pending MySQL migrations and returns the files it ran.
// MySQL commits DDL implicitly, so a file that fails halfway is not
// recorded and must be fixed by hand.
func UpMySQL(ctx context.Context, db *sql.DB) ([]string, error) {
	return up(ctx, DialectMySQL, mysqlRunner{db})
}

// UpPostgres applies pending PostgreSQL migrations, each file in its own
// transaction, and returns the files it ran.
func UpPostgres(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	return up(ctx, DialectPostgres, postgresRunner{pool})
}

type mysqlRunner struct{ db *sql.DB }

func (m mysqlRunner) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    VARCHAR(255) NOT NULL PRIMARY KEY,
		applied_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (m mysqlRunner) applied(ctx context.Context, version string) (bool, error) {
	var ok bool
	err := m.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, version).Scan(&ok)
	return ok, err
}

func (m mysqlRunner) apply(ctx context.Context, version string, stmts []string) error {
	for _, s := range stmts {
		if _, err := m.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	_, err := m.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version)
	return err
}

type postgresRunner struct{ pool *pgxpool.Pool }

func (p postgresRunner) ensureTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT        PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}

func (p postgresRunner) applied(ctx context.Context, version string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&ok)
	return ok, err
}

func (p postgresRunner) apply(ctx context.Context, version string, stmts []string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, s := range stmts {
			if _, err := tx.Exec(ctx, s); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
		return err
	})
}
