package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the database surface the engine needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Enqueuer schedules extraction work for a chunk. Implemented by the job
// queue; nil disables extraction scheduling.
type Enqueuer interface {
	EnqueueChunkExtraction(ctx context.Context, chunkID, chunkText string) error
}

// chunkNameLen bounds the display name taken from chunk text.
const chunkNameLen = 64

// Engine maintains the structural part of the graph. Upserts are
// convergent: running the same ingest twice leaves the same nodes and
// edges, and nodes for removed content are cleaned up rather than left to
// dangle.
//
// Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	db       Querier
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewEngine creates an Engine. enqueuer may be nil; a nil logger uses
// slog.Default().
func NewEngine(db Querier, enqueuer Enqueuer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, enqueuer: enqueuer, logger: logger}
}

const upsertNodeSQL = `
INSERT INTO graph_nodes (key, node_type, external_id, name, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (key) DO UPDATE SET
    external_id = EXCLUDED.external_id,
    name        = EXCLUDED.name,
    metadata    = EXCLUDED.metadata,
    updated_at  = now()`

const upsertEdgeSQL = `
INSERT INTO graph_edges (from_key, to_key, relationship_type, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (from_key, to_key, relationship_type) DO NOTHING`

// UpsertNode inserts or refreshes a single node.
func (e *Engine) UpsertNode(ctx context.Context, n Node) error {
	metadataJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata for %q: %w", n.Key, err)
	}
	if _, err := e.db.Exec(ctx, upsertNodeSQL,
		n.Key, string(n.Type), n.ExternalID, n.Name, metadataJSON,
	); err != nil {
		return fmt.Errorf("upsert node %q: %w", n.Key, err)
	}
	return nil
}

// UpsertEdge inserts an edge if it does not already exist.
func (e *Engine) UpsertEdge(ctx context.Context, edge Edge) error {
	if _, err := e.db.Exec(ctx, upsertEdgeSQL,
		edge.From, edge.To, edge.Relationship, edge.Source,
	); err != nil {
		return fmt.Errorf("upsert edge %s-[%s]->%s: %w",
			edge.From, edge.Relationship, edge.To, err)
	}
	return nil
}

// UpsertFileGraph rebuilds a file's structure subgraph from its chunks:
// one document node, section nodes for every captured heading path, and
// chunk nodes attached under their deepest section. Top-level sections
// hang off the document with has_section edges, nested ones chain with
// has_subsection, and chunks attach with contains edges. Structure nodes
// from a previous ingest that no longer correspond
// to current content are deleted first, with edges following by cascade.
//
// Extraction jobs are scheduled per chunk when an enqueuer is configured;
// a scheduling failure is logged, not returned, because the structural
// graph is already consistent at that point.
func (e *Engine) UpsertFileGraph(ctx context.Context, fileID, filename string, chunks []ChunkRef) error {
	docKey := DocumentKey(fileID)
	if err := e.UpsertNode(ctx, Node{
		Key:        docKey,
		Type:       NodeDocument,
		ExternalID: fileID,
		Name:       filename,
	}); err != nil {
		return err
	}

	sections, expected := planSections(docKey, chunks)
	if err := e.deleteOrphans(ctx, fileID, expected); err != nil {
		return err
	}

	for _, sec := range sections {
		if err := e.UpsertNode(ctx, Node{
			Key:        sec.key,
			Type:       NodeSection,
			ExternalID: fileID,
			Name:       sec.title,
			Metadata:   map[string]string{"level": fmt.Sprintf("%d", sec.level)},
		}); err != nil {
			return err
		}
		relationship := RelHasSubsection
		if sec.parent == docKey {
			relationship = RelHasSection
		}
		if err := e.UpsertEdge(ctx, Edge{
			From: sec.parent, To: sec.key, Relationship: relationship, Source: SourceSystem,
		}); err != nil {
			return err
		}
	}

	for _, chunk := range chunks {
		chunkKey := ChunkKey(chunk.VectorID)
		if err := e.UpsertNode(ctx, Node{
			Key:        chunkKey,
			Type:       NodeChunk,
			ExternalID: fileID,
			Name:       truncate(chunk.Text, chunkNameLen),
		}); err != nil {
			return err
		}
		if err := e.UpsertEdge(ctx, Edge{
			From:         parentKeyFor(docKey, chunk.Headings),
			To:           chunkKey,
			Relationship: RelContains,
			Source:       SourceSystem,
		}); err != nil {
			return err
		}
	}

	if e.enqueuer != nil {
		for _, chunk := range chunks {
			if err := e.enqueuer.EnqueueChunkExtraction(ctx, chunk.VectorID, chunk.Text); err != nil {
				e.logger.Warn("failed to enqueue extraction",
					"chunk_id", chunk.VectorID, "error", err)
			}
		}
	}

	e.logger.Debug("upserted file graph",
		"file_id", fileID, "sections", len(sections), "chunks", len(chunks))
	return nil
}

// DeleteFileGraph removes a file's structure subgraph. Edges go by
// cascade; entity nodes left without any edge are swept afterwards.
func (e *Engine) DeleteFileGraph(ctx context.Context, fileID string) error {
	if _, err := e.db.Exec(ctx,
		`DELETE FROM graph_nodes WHERE external_id = $1`, fileID,
	); err != nil {
		return fmt.Errorf("delete graph for file %q: %w", fileID, err)
	}
	return e.sweepOrphanEntities(ctx)
}

// section is one planned section node with its hierarchy position.
type section struct {
	key    string
	title  string
	level  int
	parent string
}

// planSections derives the section hierarchy from the chunks' heading
// metadata. Each heading path h1..h6 becomes a chain of section nodes, the
// shallowest hanging off the document node. The returned expected set
// holds every structure node key the current content produces, which the
// orphan cleanup treats as the survivors.
func planSections(docKey string, chunks []ChunkRef) ([]section, map[string]struct{}) {
	expected := make(map[string]struct{})
	seen := make(map[string]struct{})
	var sections []section

	for _, chunk := range chunks {
		expected[ChunkKey(chunk.VectorID)] = struct{}{}

		parent := docKey
		for _, level := range headingLevels(chunk.Headings) {
			title := chunk.Headings[fmt.Sprintf("h%d", level)]
			key := SectionKey(level, docKey, title)
			expected[key] = struct{}{}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				sections = append(sections, section{
					key: key, title: title, level: level, parent: parent,
				})
			}
			parent = key
		}
	}
	return sections, expected
}

// parentKeyFor returns the node a chunk attaches under: its deepest
// captured section, or the document when it has none.
func parentKeyFor(docKey string, headings map[string]string) string {
	levels := headingLevels(headings)
	if len(levels) == 0 {
		return docKey
	}
	deepest := levels[len(levels)-1]
	return SectionKey(deepest, docKey, headings[fmt.Sprintf("h%d", deepest)])
}

// headingLevels returns the levels present in a heading map, ascending.
func headingLevels(headings map[string]string) []int {
	var levels []int
	for level := 1; level <= 6; level++ {
		if headings[fmt.Sprintf("h%d", level)] != "" {
			levels = append(levels, level)
		}
	}
	sort.Ints(levels)
	return levels
}

// deleteOrphans removes this file's section and chunk nodes that current
// content no longer produces. Document and entity nodes are untouched.
func (e *Engine) deleteOrphans(ctx context.Context, fileID string, expected map[string]struct{}) error {
	keep := make([]string, 0, len(expected))
	for key := range expected {
		keep = append(keep, key)
	}
	sort.Strings(keep)

	tag, err := e.db.Exec(ctx, `
DELETE FROM graph_nodes
WHERE external_id = $1
  AND node_type IN ('section', 'chunk')
  AND NOT (key = ANY($2))`,
		fileID, keep)
	if err != nil {
		return fmt.Errorf("delete orphan nodes for file %q: %w", fileID, err)
	}
	if tag.RowsAffected() > 0 {
		e.logger.Debug("deleted orphan graph nodes",
			"file_id", fileID, "count", tag.RowsAffected())
	}
	return e.sweepOrphanEntities(ctx)
}

// sweepOrphanEntities drops entity nodes that no edge touches anymore.
func (e *Engine) sweepOrphanEntities(ctx context.Context) error {
	_, err := e.db.Exec(ctx, `
DELETE FROM graph_nodes n
WHERE n.node_type = 'entity'
  AND NOT EXISTS (
      SELECT 1 FROM graph_edges ed
      WHERE ed.from_key = n.key OR ed.to_key = n.key)`)
	if err != nil {
		return fmt.Errorf("sweep orphan entities: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
