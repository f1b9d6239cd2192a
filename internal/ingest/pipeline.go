// Package ingest is the write path: split a document, embed the chunks,
// and persist them, then feed the knowledge graph. The work runs in two
// phases. Phase one is transactional and synchronous: chunking, embedding,
// and the chunk rows commit or roll back together, so retrieval never sees
// a half-ingested file. Phase two, the graph rebuild and extraction
// scheduling, runs asynchronously; its failure leaves retrieval intact and
// is reported through the returned task.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/koopa0/korpus/internal/chunking"
	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/store"
)

// Input validation errors.
var (
	ErrEmptyFileID = errors.New("file id must not be empty")
	ErrEmptyUserID = errors.New("user id must not be empty")
)

// DB is the transactional surface the pipeline needs. *pgxpool.Pool
// satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Embedder turns chunk texts into vectors. *embedding.Generator satisfies
// it.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GraphUpserter maintains the file's graph subtree. *graph.Engine
// satisfies it.
type GraphUpserter interface {
	UpsertFileGraph(ctx context.Context, fileID, filename string, chunks []graph.ChunkRef) error
	DeleteFileGraph(ctx context.Context, fileID string) error
}

// FileRequest describes one document to ingest.
type FileRequest struct {
	UserID   string
	FileID   string
	Filename string
	Content  string

	// CollectionID registers the file under a collection when set.
	CollectionID string

	// Metadata is merged into every chunk's metadata. Chunk-level keys
	// (headings, chunk_index, section_title, file_type) win on conflict.
	Metadata map[string]string
}

// Result reports what an ingest did.
type Result struct {
	FileID     string
	ChunkCount int
	Strategy   chunking.Kind

	// Graph is the phase-two task. Wait on it to observe graph errors;
	// ignoring it is valid, retrieval does not depend on phase two.
	Graph *Task
}

// Pipeline ingests and deletes files.
//
// Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	db       DB
	chunker  *chunking.Chunker
	embedder Embedder
	graph    GraphUpserter
	params   chunking.Params
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(db DB, chunker *chunking.Chunker, embedder Embedder, graphEngine GraphUpserter, params chunking.Params, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		db:       db,
		chunker:  chunker,
		embedder: embedder,
		graph:    graphEngine,
		params:   params,
		logger:   logger,
	}
}

// VectorID is the deterministic chunk identity: the same file and index
// always yield the same id, which makes every write an upsert.
func VectorID(fileID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", fileID, index)
}

// IngestFile runs both phases for one document. Embedding happens before
// any write, so an embedding failure leaves the store untouched; the
// database transaction covers the chunk rows and the collection
// registration. A document that yields no chunks is a no-op with a nil
// graph task.
func (p *Pipeline) IngestFile(ctx context.Context, req FileRequest) (*Result, error) {
	if req.FileID == "" {
		return nil, ErrEmptyFileID
	}
	if req.UserID == "" {
		return nil, ErrEmptyUserID
	}

	ext := strings.TrimPrefix(filepath.Ext(req.Filename), ".")
	strategy := chunking.SelectStrategy(ext, p.params)

	chunks := p.chunker.Split(req.Content, strategy)
	chunks = chunking.Enrich(chunks, req.Content)
	if len(chunks) == 0 {
		p.logger.Info("document yielded no chunks, skipping",
			"file_id", req.FileID, "filename", req.Filename)
		return &Result{FileID: req.FileID, Strategy: strategy.Kind}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed file %q: %w", req.FileID, err)
	}

	records := make([]store.ChunkRecord, len(chunks))
	keep := make([]string, len(chunks))
	for i, chunk := range chunks {
		metadata := make(map[string]string, len(req.Metadata)+len(chunk.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}
		metadata[chunking.MetaFileType] = ext

		id := VectorID(req.FileID, chunk.Index)
		keep[i] = id
		records[i] = store.ChunkRecord{
			VectorID:  id,
			FileID:    req.FileID,
			UserID:    req.UserID,
			Text:      chunk.Text,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
	}

	if err := p.commitChunks(ctx, req, records, keep); err != nil {
		return nil, err
	}

	refs := make([]graph.ChunkRef, len(chunks))
	for i, chunk := range chunks {
		refs[i] = graph.ChunkRef{
			VectorID: records[i].VectorID,
			Text:     chunk.Text,
			Headings: headingsOf(chunk.Metadata),
		}
	}
	task := newTask()
	go func() {
		// Phase two is detached from the request: a canceled ingest call
		// must not abandon a graph half-rebuilt.
		graphCtx := context.WithoutCancel(ctx)
		task.finish(p.graph.UpsertFileGraph(graphCtx, req.FileID, req.Filename, refs))
	}()

	p.logger.Info("file ingested",
		"file_id", req.FileID,
		"strategy", string(strategy.Kind),
		"chunks", len(records))
	return &Result{
		FileID:     req.FileID,
		ChunkCount: len(records),
		Strategy:   strategy.Kind,
		Graph:      task,
	}, nil
}

// commitChunks writes the chunk rows, clears rows from a previous larger
// ingest of the same file, and registers the collection membership, all in
// one transaction.
func (p *Pipeline) commitChunks(ctx context.Context, req FileRequest, records []store.ChunkRecord, keep []string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ingest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txStore := store.New(tx, p.logger)
	if err := txStore.UpsertChunks(ctx, records); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
DELETE FROM chunks
WHERE user_id = $1 AND file_id = $2 AND NOT (vector_id = ANY($3))`,
		req.UserID, req.FileID, keep,
	); err != nil {
		return fmt.Errorf("delete stale chunks for file %q: %w", req.FileID, err)
	}

	if req.CollectionID != "" {
		if _, err := tx.Exec(ctx, `
INSERT INTO collection_files (file_id, collection_id, user_id, filename)
VALUES ($1, $2, $3, $4)
ON CONFLICT (file_id) DO UPDATE SET
    collection_id = EXCLUDED.collection_id,
    filename      = EXCLUDED.filename`,
			req.FileID, req.CollectionID, req.UserID, req.Filename,
		); err != nil {
			return fmt.Errorf("register file %q in collection %q: %w",
				req.FileID, req.CollectionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ingest transaction: %w", err)
	}
	return nil
}

// DeleteFile removes a file everywhere: chunk rows, collection
// registration, and the graph subtree. Deleting an unknown file is a
// no-op.
func (p *Pipeline) DeleteFile(ctx context.Context, userID, fileID string) error {
	if fileID == "" {
		return ErrEmptyFileID
	}
	if userID == "" {
		return ErrEmptyUserID
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	txStore := store.New(tx, p.logger)
	deleted, err := txStore.DeleteFileChunks(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
DELETE FROM collection_files WHERE user_id = $1 AND file_id = $2`,
		userID, fileID,
	); err != nil {
		return fmt.Errorf("deregister file %q: %w", fileID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}

	if err := p.graph.DeleteFileGraph(ctx, fileID); err != nil {
		return fmt.Errorf("delete graph for file %q: %w", fileID, err)
	}

	p.logger.Info("file deleted", "file_id", fileID, "chunks", deleted)
	return nil
}

// headingsOf extracts the h1..h6 entries from chunk metadata.
func headingsOf(metadata map[string]string) map[string]string {
	var headings map[string]string
	for level := 1; level <= 6; level++ {
		key := fmt.Sprintf("h%d", level)
		if title, ok := metadata[key]; ok && title != "" {
			if headings == nil {
				headings = make(map[string]string)
			}
			headings[key] = title
		}
	}
	return headings
}
