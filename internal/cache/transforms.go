package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Get returns the transformed source stored under hash.
func (db *DB) Get(ctx context.Context, hash string) (string, bool, error) {
	var code string
	err := db.conn.QueryRowContext(ctx, `SELECT code FROM transforms WHERE hash = ?`, hash).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get transform: %w", err)
	}
	_, _ = db.conn.ExecContext(ctx, `UPDATE transforms SET hits = hits + 1 WHERE hash = ?`, hash)
	return code, true, nil
}

// Put stores transformed source under hash. Existing entries are kept,
// since equal hashes mean equal input.
func (db *DB) Put(ctx context.Context, hash, code string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO transforms (hash, code) VALUES (?, ?) ON CONFLICT(hash) DO NOTHING`, hash, code)
	if err != nil {
		return fmt.Errorf("cache: put transform: %w", err)
	}
	return nil
}

// TransformStats summarises the transform table.
type TransformStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
}

// Stats reports how many transforms are stored and how often they were reused.
func (db *DB) Stats(ctx context.Context) (TransformStats, error) {
	var st TransformStats
	err := db.conn.QueryRowContext(ctx, `SELECT count(*), COALESCE(SUM(hits), 0) FROM transforms`).
		Scan(&st.Entries, &st.Hits)
	if err != nil {
		return st, fmt.Errorf("cache: transform stats: %w", err)
	}
	return st, nil
}
