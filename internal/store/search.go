package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// textSearchConfig is the PostgreSQL full-text configuration used for both
// the generated tsv column and query parsing. The two must stay in sync
// with the migration or the GIN index goes unused.
const textSearchConfig = "english"

// VectorSearch returns the chunks nearest to the query embedding by cosine
// distance, ascending. Results beyond MaxDistance are dropped when the
// filter sets one.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, f SearchFilter) ([]SearchResult, error) {
	if f.UserID == "" {
		return nil, ErrEmptyUserID
	}

	args := []any{pgvector.NewVector(embedding)}
	clauses, args, err := f.scopeClauses(args)
	if err != nil {
		return nil, err
	}
	if f.MaxDistance > 0 {
		clauses = append(clauses, fmt.Sprintf("embedding <=> $1 <= $%d", len(args)+1))
		args = append(args, f.MaxDistance)
	}
	args = append(args, f.limit())

	query := fmt.Sprintf(`
SELECT vector_id, file_id, chunk_text, metadata, embedding <=> $1 AS distance
FROM chunks
WHERE %s
ORDER BY distance ASC, vector_id ASC
LIMIT $%d`, strings.Join(clauses, " AND "), len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// KeywordSearch returns chunks matching the query terms, ranked by ts_rank
// descending. An empty or stop-word-only query yields no results.
func (s *Store) KeywordSearch(ctx context.Context, query string, f SearchFilter) ([]SearchResult, error) {
	if f.UserID == "" {
		return nil, ErrEmptyUserID
	}

	args := []any{query}
	clauses, args, err := f.scopeClauses(args)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses,
		fmt.Sprintf("tsv @@ plainto_tsquery('%s', $1)", textSearchConfig))
	args = append(args, f.limit())

	sql := fmt.Sprintf(`
SELECT vector_id, file_id, chunk_text, metadata,
       ts_rank(tsv, plainto_tsquery('%s', $1)) AS rank
FROM chunks
WHERE %s
ORDER BY rank DESC, vector_id ASC
LIMIT $%d`, textSearchConfig, strings.Join(clauses, " AND "), len(args))

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// scopeClauses renders the filter's scope conditions, continuing the
// positional parameter numbering from the given args slice. Metadata
// predicates go through json.Marshal and the JSONB containment operator so
// user-supplied keys never enter the SQL text.
func (f SearchFilter) scopeClauses(args []any) ([]string, []any, error) {
	clauses := []string{fmt.Sprintf("user_id = $%d", len(args)+1)}
	args = append(args, f.UserID)

	if len(f.FileIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("file_id = ANY($%d)", len(args)+1))
		args = append(args, f.FileIDs)
	}

	if len(f.Include) > 0 {
		includeJSON, err := json.Marshal(f.Include)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal include filter: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("metadata @> $%d", len(args)+1))
		args = append(args, includeJSON)
	}

	for key, value := range f.Exclude {
		excludeJSON, err := json.Marshal(map[string]string{key: value})
		if err != nil {
			return nil, nil, fmt.Errorf("marshal exclude filter: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf("NOT (metadata @> $%d)", len(args)+1))
		args = append(args, excludeJSON)
	}

	// COALESCE makes a missing field compare as '', so a chunk without
	// the field is excluded only when the pattern matches the empty
	// string.
	for key, pattern := range f.ExcludePatterns {
		clauses = append(clauses, fmt.Sprintf(
			"COALESCE(metadata->>$%d, '') NOT LIKE $%d", len(args)+1, len(args)+2))
		args = append(args, key, pattern)
	}

	return clauses, args, nil
}

func (f SearchFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

func (s *Store) scanResults(rows pgx.Rows) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var (
			r            SearchResult
			metadataJSON []byte
		)
		if err := rows.Scan(&r.VectorID, &r.FileID, &r.Text, &metadataJSON, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "vector_id", r.VectorID, "error", err)
			r.Metadata = make(map[string]string)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}
