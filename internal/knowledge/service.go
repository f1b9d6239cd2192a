// Package knowledge is the read path: it resolves the query's scope,
// dispatches to the configured retrieval mode, fuses rankings, and
// optionally annotates hits with their graph neighborhood.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/store"
)

// SearchMode selects the retrieval path.
type SearchMode string

const (
	// ModeHybrid runs vector and keyword search and fuses the rankings.
	// The default.
	ModeHybrid SearchMode = "hybrid"

	// ModeVector is similarity search only.
	ModeVector SearchMode = "vector"

	// ModeKeyword is full-text search only.
	ModeKeyword SearchMode = "keyword"
)

// Validation errors.
var (
	ErrEmptyQuery  = errors.New("query must not be empty")
	ErrEmptyUserID = errors.New("user id must not be empty")
	ErrUnknownMode = errors.New("unknown search mode")
)

// Searcher is the store surface the service reads through. *store.Store
// satisfies it.
type Searcher interface {
	VectorSearch(ctx context.Context, embedding []float32, f store.SearchFilter) ([]store.SearchResult, error)
	KeywordSearch(ctx context.Context, query string, f store.SearchFilter) ([]store.SearchResult, error)
}

// QueryEmbedder embeds query strings. *embedding.Generator satisfies it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Traverser walks the graph. *graph.Engine satisfies it.
type Traverser interface {
	Neighbors(ctx context.Context, startKey string, opts graph.TraversalOptions) ([]graph.Neighbor, error)
}

// ScopeResolver narrows queries to collections and files. *Collections
// satisfies it.
type ScopeResolver interface {
	SearchIndex(ctx context.Context, userID, query string) (collectionIDs, fileIDs []string, err error)
	FilesOfCollections(ctx context.Context, userID string, collectionIDs []string) ([]string, error)
}

// QueryRequest is one retrieval request.
type QueryRequest struct {
	UserID string
	Query  string
	Mode   SearchMode
	Limit  int

	// CollectionID scopes retrieval to one collection's files. When empty
	// the coarse index decides the scope from the query text, unless
	// SkipCollectionSearch turns that off too.
	CollectionID         string
	SkipCollectionSearch bool

	Include         map[string]string
	Exclude         map[string]string
	ExcludePatterns map[string]string
	MaxDistance     float64

	// EnableGraph annotates each hit with its graph neighborhood.
	EnableGraph        bool
	GraphDepth         int
	GraphRelationships []string
	GraphDirection     graph.Direction
}

// QueryResult is one hit, optionally annotated with related graph nodes.
type QueryResult struct {
	store.SearchResult

	// Related holds graph neighbors of the chunk when graph annotation is
	// on: its entities, its section, related chunks.
	Related []graph.Neighbor
}

// Service orchestrates retrieval.
//
// Service is safe for concurrent use by multiple goroutines.
type Service struct {
	searcher Searcher
	embedder QueryEmbedder
	graph    Traverser
	scopes   ScopeResolver
	logger   *slog.Logger
}

// NewService creates a Service. graph may be nil when graph annotation is
// never requested.
func NewService(searcher Searcher, embedder QueryEmbedder, traverser Traverser, scopes ScopeResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		searcher: searcher,
		embedder: embedder,
		graph:    traverser,
		scopes:   scopes,
		logger:   logger,
	}
}

// Query resolves the request scope, retrieves, and fuses. An explicit
// collection id wins; otherwise the coarse index is searched with the
// query text. When only filenames match the index, those files are
// searched directly and any hits are final. An unresolvable scope yields
// an empty result rather than an error: the user asked for a subset and
// got the empty one. SkipCollectionSearch without a collection id searches
// all of the user's chunks.
func (s *Service) Query(ctx context.Context, req QueryRequest) ([]QueryResult, error) {
	if req.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	filter := store.SearchFilter{
		UserID:          req.UserID,
		Include:         req.Include,
		Exclude:         req.Exclude,
		ExcludePatterns: req.ExcludePatterns,
		MaxDistance:     req.MaxDistance,
		Limit:           req.Limit,
	}

	switch {
	case req.CollectionID != "":
		fileIDs, err := s.scopes.FilesOfCollections(ctx, req.UserID, []string{req.CollectionID})
		if err != nil {
			return nil, err
		}
		if len(fileIDs) == 0 {
			return []QueryResult{}, nil
		}
		filter.FileIDs = fileIDs

	case !req.SkipCollectionSearch:
		collectionIDs, fileIDs, err := s.scopes.SearchIndex(ctx, req.UserID, req.Query)
		if err != nil {
			return nil, err
		}

		if len(collectionIDs) == 0 {
			if len(fileIDs) == 0 {
				return []QueryResult{}, nil
			}
			// Only filenames matched: search those files directly and
			// take any hits as final.
			filter.FileIDs = fileIDs
			results, err := s.retrieve(ctx, req, filter)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return []QueryResult{}, nil
			}
			return s.finish(ctx, req, results, filter)
		}

		scoped, err := s.scopes.FilesOfCollections(ctx, req.UserID, collectionIDs)
		if err != nil {
			return nil, err
		}
		if len(scoped) == 0 {
			return []QueryResult{}, nil
		}
		filter.FileIDs = scoped
	}

	results, err := s.retrieve(ctx, req, filter)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, req, results, filter)
}

func (s *Service) finish(ctx context.Context, req QueryRequest, results []store.SearchResult, filter store.SearchFilter) ([]QueryResult, error) {
	out := make([]QueryResult, len(results))
	for i, r := range results {
		out[i] = QueryResult{SearchResult: r}
	}

	if req.EnableGraph && s.graph != nil {
		s.annotate(ctx, req, out)
	}

	s.logger.Debug("query served",
		"mode", string(s.mode(req)), "results", len(out),
		"scoped_files", len(filter.FileIDs))
	return out, nil
}

func (s *Service) mode(req QueryRequest) SearchMode {
	if req.Mode == "" {
		return ModeHybrid
	}
	return req.Mode
}

func (s *Service) retrieve(ctx context.Context, req QueryRequest, filter store.SearchFilter) ([]store.SearchResult, error) {
	switch s.mode(req) {
	case ModeVector:
		embedding, err := s.embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return s.searcher.VectorSearch(ctx, embedding, filter)

	case ModeKeyword:
		return s.searcher.KeywordSearch(ctx, req.Query, filter)

	case ModeHybrid:
		embedding, err := s.embedder.EmbedQuery(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vector, err := s.searcher.VectorSearch(ctx, embedding, filter)
		if err != nil {
			return nil, err
		}
		keyword, err := s.searcher.KeywordSearch(ctx, req.Query, filter)
		if err != nil {
			return nil, err
		}
		return store.FuseRRF([][]store.SearchResult{vector, keyword}, filter.Limit), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

// annotate attaches each hit's graph neighborhood. Annotation is
// best-effort: a traversal failure logs and leaves that hit bare rather
// than failing a query whose primary results are already in hand.
func (s *Service) annotate(ctx context.Context, req QueryRequest, results []QueryResult) {
	depth := req.GraphDepth
	if depth <= 0 {
		depth = 1
	}
	for i := range results {
		neighbors, err := s.graph.Neighbors(ctx, graph.ChunkKey(results[i].VectorID), graph.TraversalOptions{
			Depth:         depth,
			Direction:     req.GraphDirection,
			Relationships: req.GraphRelationships,
		})
		if err != nil {
			s.logger.Warn("graph annotation failed",
				"vector_id", results[i].VectorID, "error", err)
			continue
		}
		results[i].Related = neighbors
	}
}
