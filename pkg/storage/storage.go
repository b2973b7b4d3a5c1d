// Package storage runs the read-only business queries behind the digest
// against the off-chain transaction ledger.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

type dialect struct {
	sqlDriver string
	numbered  bool   // $1, $2 placeholders instead of ?
	sumCast   string // cast applied to SUM so it scans into int64
}

var dialects = map[string]dialect{
	DriverPostgres: {sqlDriver: "pgx", numbered: true, sumCast: "BIGINT"},
	DriverMySQL:    {sqlDriver: "mysql", sumCast: "SIGNED"},
	DriverSQLite:   {sqlDriver: "sqlite"},
}

// Ledger queries the transaction and address tables. It never writes.
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the ledger with a single connection, which is all one
// digest build needs. The caller must Close it.
func Open(ctx context.Context, driver, dsn string) (*Ledger, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, model.ConfigError("ledger", fmt.Errorf("unsupported driver %q", driver))
	}

	db, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, model.QueryError("ledger", fmt.Errorf("open database: %w", err))
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, model.QueryError("ledger", fmt.Errorf("ping database: %w", err))
	}

	return &Ledger{db: db, dialect: d}, nil
}

// NewLedger wraps an existing handle. driver selects the SQL dialect.
func NewLedger(db *sql.DB, driver string) (*Ledger, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, model.ConfigError("ledger", fmt.Errorf("unsupported driver %q", driver))
	}
	return &Ledger{db: db, dialect: d}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (l *Ledger) rebind(query string) string {
	if !l.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (l *Ledger) sum(expr string) string {
	s := "COALESCE(SUM(" + expr + "), 0)"
	if l.dialect.sumCast == "" {
		return s
	}
	return "CAST(" + s + " AS " + l.dialect.sumCast + ")"
}
