package cache

import (
	"context"
	"fmt"
	"time"
)

// RenderState records the last render of one source document.
// Fingerprint identifies everything besides the document that affects
// output: settings, component code and utils.
type RenderState struct {
	Path        string
	Checksum    string
	Fingerprint string
	OutputPath  string
	Status      string
	Error       string
	RenderedAt  time.Time
}

// SaveRenderState inserts or replaces the state for s.Path.
func (db *DB) SaveRenderState(ctx context.Context, s RenderState) error {
	if s.RenderedAt.IsZero() {
		s.RenderedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO renders (path, checksum, fingerprint, output_path, status, error, rendered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			fingerprint = excluded.fingerprint,
			output_path = excluded.output_path,
			status      = excluded.status,
			error       = excluded.error,
			rendered_at = excluded.rendered_at
	`, s.Path, s.Checksum, s.Fingerprint, s.OutputPath, s.Status, s.Error, s.RenderedAt)
	if err != nil {
		return fmt.Errorf("cache: save render state: %w", err)
	}
	return nil
}

// DeleteRenderState removes the state for path.
func (db *DB) DeleteRenderState(ctx context.Context, path string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM renders WHERE path = ?`, path); err != nil {
		return fmt.Errorf("cache: delete render state: %w", err)
	}
	return nil
}

// RenderStates returns every recorded state keyed by path.
func (db *DB) RenderStates(ctx context.Context) (map[string]RenderState, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT path, checksum, fingerprint, output_path, status, error, rendered_at FROM renders`)
	if err != nil {
		return nil, fmt.Errorf("cache: list render states: %w", err)
	}
	defer rows.Close()

	out := make(map[string]RenderState)
	for rows.Next() {
		var s RenderState
		if err := rows.Scan(&s.Path, &s.Checksum, &s.Fingerprint, &s.OutputPath, &s.Status, &s.Error, &s.RenderedAt); err != nil {
			return nil, fmt.Errorf("cache: scan render state: %w", err)
		}
		out[s.Path] = s
	}
	return out, rows.Err()
}
