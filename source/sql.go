package source

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"  // registers the "postgres" driver
	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" driver
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Table describes where embeddings live. The zero value reads the
// documents(id, content, embedding) layout.
type Table struct {
	Name          string
	IDColumn      string
	ContentColumn string // optional; empty skips content
	VectorColumn  string
}

// DefaultTable is the documents table layout.
var DefaultTable = Table{
	Name:          "documents",
	IDColumn:      "id",
	ContentColumn: "content",
	VectorColumn:  "embedding",
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func (t Table) withDefaults() Table {
	if t.Name == "" {
		t.Name = DefaultTable.Name
	}
	if t.IDColumn == "" {
		t.IDColumn = DefaultTable.IDColumn
	}
	if t.VectorColumn == "" {
		t.VectorColumn = DefaultTable.VectorColumn
	}
	return t
}

func (t Table) validate() error {
	for _, ident := range []string{t.Name, t.IDColumn, t.VectorColumn, t.ContentColumn} {
		if ident != "" && !identRe.MatchString(ident) {
			return fmt.Errorf("source: invalid identifier %q", ident)
		}
	}
	return nil
}

// SQL reads and writes embeddings through database/sql.
type SQL struct {
	db     *sql.DB
	driver string
	table  Table
}

// Open connects with driver (DriverPostgres or DriverSQLite) and dsn.
func Open(driver, dsn string, table Table) (*SQL, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("source: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	s, err := NewSQL(db, driver, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database. driver selects the placeholder syntax.
func NewSQL(db *sql.DB, driver string, table Table) (*SQL, error) {
	table = table.withDefaults()
	if err := table.validate(); err != nil {
		return nil, err
	}
	return &SQL{db: db, driver: driver, table: table}, nil
}

// DB returns the underlying handle.
func (s *SQL) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) selectQuery(limit int) string {
	cols := []string{s.table.IDColumn, s.table.VectorColumn}
	if s.table.ContentColumn != "" {
		cols = append(cols, s.table.ContentColumn)
	}
	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + s.table.Name +
		" ORDER BY " + s.table.IDColumn
	if limit > 0 {
		q += " LIMIT " + strconv.Itoa(limit)
	}
	return q
}

func (s *SQL) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Scan streams records ordered by id. limit <= 0 reads the whole table.
// Embeddings may be stored as pgvector text or as little-endian float32 blobs.
func (s *SQL) Scan(ctx context.Context, limit int, fn func(Record) error) error {
	rows, err := s.db.QueryContext(ctx, s.selectQuery(limit))
	if err != nil {
		return fmt.Errorf("source: query %s: %w", s.table.Name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      any
			raw     any
			content sql.NullString
		)
		dest := []any{&id, &raw}
		if s.table.ContentColumn != "" {
			dest = append(dest, &content)
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		key, err := formatID(id)
		if err != nil {
			return err
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return fmt.Errorf("source: row %s: %w", key, err)
		}
		if err := fn(Record{ID: key, Content: content.String, Vector: vec}); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Load reads up to limit records.
func (s *SQL) Load(ctx context.Context, limit int) ([]Record, error) {
	var recs []Record
	err := s.Scan(ctx, limit, func(r Record) error {
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// CreateTable creates the table if it does not exist. The id column is text
// and the embedding is stored in pgvector text form.
func (s *SQL) CreateTable(ctx context.Context) error {
	cols := s.table.IDColumn + " TEXT PRIMARY KEY, " + s.table.VectorColumn + " TEXT NOT NULL"
	if s.table.ContentColumn != "" {
		cols += ", " + s.table.ContentColumn + " TEXT"
	}
	_, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+s.table.Name+" ("+cols+")")
	return err
}

// Insert writes recs in one transaction.
func (s *SQL) Insert(ctx context.Context, recs []Record) error {
	cols := []string{s.table.IDColumn, s.table.VectorColumn}
	if s.table.ContentColumn != "" {
		cols = append(cols, s.table.ContentColumn)
	}
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = s.placeholder(i + 1)
	}
	q := "INSERT INTO " + s.table.Name + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(marks, ", ") + ")"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		args := []any{r.ID, FormatVectorText(r.Vector)}
		if s.table.ContentColumn != "" {
			args = append(args, r.Content)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("source: insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func formatID(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", fmt.Errorf("source: unsupported id column type %T", v)
	}
}
