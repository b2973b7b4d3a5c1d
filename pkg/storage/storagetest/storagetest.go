// Package storagetest builds throwaway SQLite ledgers for tests.
package storagetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"

	_ "modernc.org/sqlite"
)

// Schema mirrors the production ledger tables the queries touch.
const Schema = `
CREATE TABLE IF NOT EXISTS gasfree_addresses (
	gasfree_address TEXT PRIMARY KEY,
	account_address TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS gasfree_offchains (
	id              TEXT PRIMARY KEY,
	state           TEXT NOT NULL CHECK(state IN ('SUCCEED', 'FAILED', 'INPROGRESS', 'WAITING')),
	amount          INTEGER NOT NULL DEFAULT 0,
	api_key         TEXT NOT NULL DEFAULT '',
	gasfree_address TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_offchains_created_at ON gasfree_offchains(created_at);
CREATE INDEX IF NOT EXISTS idx_offchains_api_key ON gasfree_offchains(api_key);
`

// Ledger is a seeded SQLite database file.
type Ledger struct {
	t    *testing.T
	DSN  string
	conn *sql.DB
}

// New creates an empty ledger under t.TempDir.
func New(t *testing.T) *Ledger {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db")

	conn, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(Schema)
	require.NoError(t, err)

	return &Ledger{t: t, DSN: dsn, conn: conn}
}

// Address registers a deposit address owned by account.
func (l *Ledger) Address(gasfreeAddr, account string, createdAt time.Time) {
	l.t.Helper()
	_, err := l.conn.ExecContext(context.Background(),
		`INSERT INTO gasfree_addresses (gasfree_address, account_address, created_at) VALUES (?, ?, ?)`,
		gasfreeAddr, account, createdAt.UTC().Truncate(time.Second))
	require.NoError(l.t, err)
}

// Tx records one transfer.
func (l *Ledger) Tx(gasfreeAddr string, state model.TxState, amount int64, apiKey string, createdAt time.Time) {
	l.t.Helper()
	_, err := l.conn.ExecContext(context.Background(),
		`INSERT INTO gasfree_offchains (id, state, amount, api_key, gasfree_address, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), string(state), amount, apiKey, gasfreeAddr, createdAt.UTC().Truncate(time.Second))
	require.NoError(l.t, err)
}
