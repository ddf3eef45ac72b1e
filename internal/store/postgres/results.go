package postgres

import (
	"context"
	"database/sql"

	"simplane/internal/store"
)

// RecordResult upserts a finished simulation. A later call for the same
// simulation (a score that arrived late) replaces the row.
func (s *Store) RecordResult(ctx context.Context, r store.Result) error {
	query := `
		INSERT INTO simulation_results (simulation_id, name, contact, avatar_id, score, handle, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (simulation_id) DO UPDATE SET
			score = EXCLUDED.score,
			avatar_id = EXCLUDED.avatar_id,
			handle = EXCLUDED.handle,
			finished_at = EXCLUDED.finished_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.SimulationID,
		r.Name,
		r.Contact,
		r.AvatarID,
		r.Score,
		r.Handle,
		r.FinishedAt,
	)
	return err
}

// ListResults returns up to limit archived results, most recently finished
// first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]store.Result, error) {
	query := `
		SELECT simulation_id, name, contact, avatar_id, score, handle, finished_at
		FROM simulation_results
		ORDER BY finished_at DESC, simulation_id DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Result{}
	for rows.Next() {
		var r store.Result
		var score sql.NullFloat64
		if err := rows.Scan(&r.SimulationID, &r.Name, &r.Contact, &r.AvatarID, &score, &r.Handle, &r.FinishedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			r.Score = &v
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
