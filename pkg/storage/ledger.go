package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

// CountTransactions counts transfers matching filter.
func (l *Ledger) CountTransactions(ctx context.Context, filter model.TxFilter) (int64, error) {
	return l.aggregate(ctx, "COUNT(o.id)", filter)
}

// SumAmount sums the micro-unit amount of transfers matching filter.
func (l *Ledger) SumAmount(ctx context.Context, filter model.TxFilter) (int64, error) {
	return l.aggregate(ctx, l.sum("o.amount"), filter)
}

func (l *Ledger) aggregate(ctx context.Context, column string, filter model.TxFilter) (int64, error) {
	query := "SELECT " + column + " FROM gasfree_offchains o"
	where, args := buildWhereClause(filter)
	if filter.NewAddressesOnly {
		query += " INNER JOIN gasfree_addresses ga ON ga.gasfree_address = o.gasfree_address"
	}
	if where != "" {
		query += " WHERE " + where
	}

	var n int64
	if err := l.db.QueryRowContext(ctx, l.rebind(query), args...).Scan(&n); err != nil {
		return 0, model.QueryError("ledger", fmt.Errorf("aggregate transactions: %w", err))
	}
	return n, nil
}

// CountAddresses counts owner accounts whose number of transfers lies in
// [lo, hi). A hi <= 0 leaves the range unbounded. Accounts without any
// transfer are not counted.
func (l *Ledger) CountAddresses(ctx context.Context, lo, hi int64) (int64, error) {
	having := "COUNT(o.id) >= ?"
	args := []any{lo}
	if hi > 0 {
		having += " AND COUNT(o.id) < ?"
		args = append(args, hi)
	}

	query := `SELECT COUNT(*) FROM (
		SELECT ga.account_address
		FROM gasfree_addresses ga
		INNER JOIN gasfree_offchains o ON ga.gasfree_address = o.gasfree_address
		GROUP BY ga.account_address
		HAVING ` + having + `
	) AS buckets`

	var n int64
	if err := l.db.QueryRowContext(ctx, l.rebind(query), args...).Scan(&n); err != nil {
		return 0, model.QueryError("ledger", fmt.Errorf("count addresses: %w", err))
	}
	return n, nil
}

// RankPartners returns up to limit partner keys ordered by transferred amount
// inside window, highest first. Keys without transfers in the window are omitted.
func (l *Ledger) RankPartners(ctx context.Context, keys []string, window model.Window, limit int) ([]model.PartnerVolume, error) {
	if len(keys) == 0 || limit <= 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, 0, len(keys)+3)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, dbTime(window.Start), dbTime(window.End), limit)

	query := `SELECT o.api_key, COUNT(o.id), ` + l.sum("o.amount") + ` AS total
		FROM gasfree_offchains o
		WHERE o.api_key IN (` + placeholders + `)
		  AND o.created_at >= ? AND o.created_at <= ?
		GROUP BY o.api_key
		ORDER BY total DESC, o.api_key
		LIMIT ?`

	rows, err := l.db.QueryContext(ctx, l.rebind(query), args...)
	if err != nil {
		return nil, model.QueryError("ledger", fmt.Errorf("rank partners: %w", err))
	}
	defer rows.Close()

	var ranking []model.PartnerVolume
	for rows.Next() {
		var p model.PartnerVolume
		if err := rows.Scan(&p.Key, &p.Count, &p.Amount); err != nil {
			return nil, model.QueryError("ledger", fmt.Errorf("scan partner row: %w", err))
		}
		ranking = append(ranking, p)
	}
	if err := rows.Err(); err != nil {
		return nil, model.QueryError("ledger", fmt.Errorf("iterate partner rows: %w", err))
	}
	return ranking, nil
}

// buildWhereClause constructs a SQL WHERE clause from a TxFilter.
func buildWhereClause(filter model.TxFilter) (string, []any) {
	var conditions []string
	var args []any

	if !filter.Window.Start.IsZero() {
		conditions = append(conditions, "o.created_at >= ?")
		args = append(args, dbTime(filter.Window.Start))
	}
	if !filter.Window.End.IsZero() {
		conditions = append(conditions, "o.created_at <= ?")
		args = append(args, dbTime(filter.Window.End))
	}
	if filter.State != "" {
		conditions = append(conditions, "o.state = ?")
		args = append(args, string(filter.State))
	}
	if filter.MinAmount > 0 {
		conditions = append(conditions, "o.amount >= ?")
		args = append(args, filter.MinAmount)
	}
	if filter.NewAddressesOnly {
		if !filter.Window.Start.IsZero() {
			conditions = append(conditions, "ga.created_at >= ?")
			args = append(args, dbTime(filter.Window.Start))
		}
		if !filter.Window.End.IsZero() {
			conditions = append(conditions, "ga.created_at <= ?")
			args = append(args, dbTime(filter.Window.End))
		}
	}

	return strings.Join(conditions, " AND "), args
}

// dbTime normalises bounds to whole seconds in UTC so every driver compares them consistently.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
