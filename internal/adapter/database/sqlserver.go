package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

// SQLServerDumper produces a plain INSERT script through the native driver,
// since no portable dump binary ships with SQL Server.
type SQLServerDumper struct {
	timeout time.Duration
	open    func(driver, dsn string) (*sql.DB, error)
	now     func() time.Time
}

func NewSQLServer(timeout time.Duration) *SQLServerDumper {
	return &SQLServerDumper{timeout: timeout, open: sql.Open, now: time.Now}
}

// WithOpener replaces the connection factory, mainly for tests.
func (s *SQLServerDumper) WithOpener(open func(driver, dsn string) (*sql.DB, error)) *SQLServerDumper {
	s.open = open
	return s
}

type tableRef struct {
	schema string
	name   string
}

func (t tableRef) quoted() string {
	return quoteIdent(t.schema) + "." + quoteIdent(t.name)
}

func (s *SQLServerDumper) Dump(ctx context.Context, target *domain.DatabaseTarget) ([]byte, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	driver, dsn, err := DSN(target, 30*time.Second)
	if err != nil {
		return nil, err
	}

	db, err := s.open(driver, dsn)
	if err != nil {
		return nil, s.fail(target, err)
	}
	defer db.Close()

	tables, err := listTables(ctx, db)
	if err != nil {
		return nil, s.fail(target, err)
	}
	if len(tables) == 0 {
		return nil, ErrEmptyDatabase
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- SQL Server backup for %s\n", target.Schema())
	fmt.Fprintf(&b, "-- Generated at: %s\n\n", s.now().UTC().Format(time.RFC3339))

	for _, t := range tables {
		fmt.Fprintf(&b, "-- Table: %s\n", t.quoted())
		if err := dumpTable(ctx, db, t, &b); err != nil {
			return nil, s.fail(target, err)
		}
		b.WriteString("\n")
	}

	return []byte(b.String()), nil
}

func (s *SQLServerDumper) fail(target *domain.DatabaseTarget, err error) error {
	return domain.WrapError(domain.KindDumpFailed, fmt.Sprintf("sqlserver dump failed for %s", target.Name), err)
}

func (s *SQLServerDumper) Engine() domain.EngineType {
	return domain.EngineSQLServer
}

const listTablesQuery = `SELECT TABLE_SCHEMA, TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_SCHEMA, TABLE_NAME`

func listTables(ctx context.Context, db *sql.DB) ([]tableRef, error) {
	rows, err := db.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func dumpTable(ctx context.Context, db *sql.DB, t tableRef, b *strings.Builder) error {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+t.quoted())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", t.quoted(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns of %s: %w", t.quoted(), err)
	}
	quotedCols := make([]string, len(cols))
	for i, c := range cols {
		quotedCols[i] = quoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", t.quoted(), strings.Join(quotedCols, ", "))

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row of %s: %w", t.quoted(), err)
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		b.WriteString(prefix)
		b.WriteString(strings.Join(literals, ", "))
		b.WriteString(");\n")
	}
	return rows.Err()
}

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return "0x" + strings.ToUpper(hex.EncodeToString(val))
	case time.Time:
		return "'" + val.Format("2006-01-02T15:04:05.9999999Z07:00") + "'"
	case string:
		return "N'" + strings.ReplaceAll(val, "'", "''") + "'"
	}
	return "N'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}
