package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FeedbackStore persists append-only feedback records to Postgres.
type FeedbackStore struct {
	pool *pgxpool.Pool
}

// NewFeedbackStore creates a FeedbackStore over an existing pool.
func NewFeedbackStore(pool *pgxpool.Pool) *FeedbackStore {
	return &FeedbackStore{pool: pool}
}

// Insert appends a feedback record and returns its assigned ID. Records are
// never mutated after insertion.
func (s *FeedbackStore) Insert(ctx context.Context, r model.FeedbackRecord) (int64, error) {
	const q = `
		INSERT INTO feedback (query, doc_id, chunk_id, label, user_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, q, r.Query, r.DocID, r.ChunkID, r.Label, r.UserID, r.Timestamp).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("repository.FeedbackStore.Insert: %w", err)
	}
	return id, nil
}
