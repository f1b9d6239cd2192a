package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrEmptyUserID guards every store operation: chunks are always scoped to
// a user and an unscoped query would leak across tenants.
var ErrEmptyUserID = errors.New("user id must not be empty")

// Querier is the database surface the store needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, which lets the ingestion pipeline run chunk writes
// inside its transaction while searches go straight to the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists and retrieves chunks.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// New creates a Store. A nil logger uses slog.Default().
func New(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const upsertChunkSQL = `
INSERT INTO chunks (vector_id, file_id, user_id, embedding, metadata, chunk_text, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (vector_id) DO UPDATE SET
    file_id    = EXCLUDED.file_id,
    user_id    = EXCLUDED.user_id,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    chunk_text = EXCLUDED.chunk_text,
    updated_at = now()`

// UpsertChunks writes a batch of chunks. Identity is the deterministic
// vector_id, so re-ingesting a file overwrites its previous chunks in
// place. Callers that need atomicity pass a pgx.Tx as the Querier.
func (s *Store) UpsertChunks(ctx context.Context, records []ChunkRecord) error {
	for _, rec := range records {
		if rec.UserID == "" {
			return fmt.Errorf("chunk %q: %w", rec.VectorID, ErrEmptyUserID)
		}
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for chunk %q: %w", rec.VectorID, err)
		}
		embedding := pgvector.NewVector(rec.Embedding)

		if _, err := s.db.Exec(ctx, upsertChunkSQL,
			rec.VectorID, rec.FileID, rec.UserID, embedding, metadataJSON, rec.Text,
		); err != nil {
			return fmt.Errorf("upsert chunk %q: %w", rec.VectorID, err)
		}
	}

	s.logger.Debug("upserted chunks", "count", len(records))
	return nil
}

// DeleteFileChunks removes every chunk of a file and reports how many rows
// went away. Deleting a file that was never ingested is a no-op.
func (s *Store) DeleteFileChunks(ctx context.Context, userID, fileID string) (int64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM chunks WHERE user_id = $1 AND file_id = $2`,
		userID, fileID)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for file %q: %w", fileID, err)
	}

	s.logger.Debug("deleted file chunks", "file_id", fileID, "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// CountFileChunks returns the number of stored chunks for a file.
func (s *Store) CountFileChunks(ctx context.Context, userID, fileID string) (int64, error) {
	if userID == "" {
		return 0, ErrEmptyUserID
	}

	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE user_id = $1 AND file_id = $2`,
		userID, fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks for file %q: %w", fileID, err)
	}
	return count, nil
}
