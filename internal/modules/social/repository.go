package social

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
)

// Repository persists the follower graph
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new social repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "social").Logger(),
	}
}

// Insert stores one follow relation; inserting an existing pair is a no-op.
func (r *Repository) Insert(ctx context.Context, followerID, leaderID string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT OR IGNORE INTO follows (follower_id, leader_id, created_at)
		VALUES (?, ?, ?)
	`, followerID, leaderID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert follow: %w", err)
	}
	return nil
}

// Delete removes one follow relation.
func (r *Repository) Delete(ctx context.Context, followerID, leaderID string) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		DELETE FROM follows WHERE follower_id = ? AND leader_id = ?
	`, followerID, leaderID)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	return nil
}

// All returns every (follower, leader) pair, used to warm the in-memory
// adjacency at startup.
func (r *Repository) All(ctx context.Context) ([][2]string, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `SELECT follower_id, leader_id FROM follows`)
	if err != nil {
		return nil, fmt.Errorf("failed to query follows: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var follower, leader string
		if err := rows.Scan(&follower, &leader); err != nil {
			return nil, fmt.Errorf("failed to scan follow: %w", err)
		}
		pairs = append(pairs, [2]string{follower, leader})
	}
	return pairs, rows.Err()
}
