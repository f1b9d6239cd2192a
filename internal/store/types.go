// Package store persists chunks in PostgreSQL and serves the two retrieval
// paths over them: vector similarity through pgvector and keyword search
// through the generated tsvector column. Reciprocal rank fusion merges the
// two rankings into one list.
package store

// ChunkRecord is one chunk ready for persistence. VectorID is the
// deterministic identity: re-ingesting the same file produces the same ids,
// so writes are upserts and never duplicate.
type ChunkRecord struct {
	VectorID  string
	FileID    string
	UserID    string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// SearchResult is one retrieval hit. Score semantics depend on the search
// path: cosine distance (lower is better) for vector search, ts_rank
// (higher is better) for keyword search, and the reciprocal rank fusion
// score (higher is better) after fusion.
type SearchResult struct {
	VectorID string
	FileID   string
	Text     string
	Metadata map[string]string
	Score    float64
}

// SearchFilter narrows a search. UserID is mandatory; everything else is
// optional. Include entries must all be present in a chunk's metadata,
// Exclude entries must all be absent. ExcludePatterns entries reject
// chunks whose metadata field matches an SQL LIKE pattern; a missing
// field counts as the empty string, so only the pattern decides.
type SearchFilter struct {
	UserID          string
	FileIDs         []string
	Include         map[string]string
	Exclude         map[string]string
	ExcludePatterns map[string]string

	// MaxDistance drops vector hits whose cosine distance exceeds the
	// bound; zero disables the cutoff. Keyword search ignores it.
	MaxDistance float64

	Limit int
}

// DefaultLimit applies when a filter does not set one.
const DefaultLimit = 10
