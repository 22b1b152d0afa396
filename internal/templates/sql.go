package templates

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/card-canvas/internal/design"
)

// Dialect names the SQL flavour a SQLStore speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDSN splits a template store DSN into driver dialect and driver DSN.
//
//	sqlite:<path>                   modernc.org/sqlite
//	postgres://... or postgresql://  lib/pq
//	mysql:<user:pass@tcp(host)/db>  go-sql-driver/mysql
func ParseDSN(dsn string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return DialectSQLite, strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "mysql:"):
		return DialectMySQL, strings.TrimPrefix(dsn, "mysql:"), nil
	}
	return "", "", fmt.Errorf("unsupported template DSN %q (want sqlite:, postgres:// or mysql:)", dsn)
}

// SQLStore keeps templates in a SQL table.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens the database named by dsn (see ParseDSN) and prepares the
// schema.
func OpenSQL(dsn string) (*SQLStore, error) {
	dialect, driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	driver := string(dialect)
	if dialect == DialectSQLite && !strings.Contains(driverDSN, "?") {
		driverDSN += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(driver, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time, or SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
	}

	s, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database and creates the table if needed.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS card_templates (
		id VARCHAR(191) PRIMARY KEY,
		name TEXT NOT NULL,
		category VARCHAR(191) NOT NULL,
		thumbnail TEXT NOT NULL,
		pages TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	return err
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) upsertQuery() string {
	const insert = `INSERT INTO card_templates (id, name, category, thumbnail, pages, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if s.dialect == DialectMySQL {
		return insert + ` ON DUPLICATE KEY UPDATE name = VALUES(name), category = VALUES(category),
			thumbnail = VALUES(thumbnail), pages = VALUES(pages), updated_at = VALUES(updated_at)`
	}
	return s.rebind(insert + ` ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category,
		thumbnail = excluded.thumbnail, pages = excluded.pages, updated_at = excluded.updated_at`)
}

func (s *SQLStore) Get(ctx context.Context, id string) (Template, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, name, category, thumbnail, pages, updated_at FROM card_templates WHERE id = ?`), id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, err
}

func (s *SQLStore) List(ctx context.Context) ([]Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, thumbnail, pages, updated_at FROM card_templates`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Put(ctx context.Context, t Template) error {
	pages, err := json.Marshal(t.Pages)
	if err != nil {
		return fmt.Errorf("encode pages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.upsertQuery(),
		t.ID, t.Name, t.Category, t.Thumbnail, string(pages), t.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM card_templates WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(sc scanner) (Template, error) {
	var (
		t       Template
		pages   string
		updated int64
	)
	if err := sc.Scan(&t.ID, &t.Name, &t.Category, &t.Thumbnail, &pages, &updated); err != nil {
		return Template{}, err
	}
	if err := json.Unmarshal([]byte(pages), &t.Pages); err != nil {
		return Template{}, fmt.Errorf("decode pages of %s: %w", t.ID, err)
	}
	if t.Pages == nil {
		t.Pages = []design.Page{}
	}
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return t, nil
}
