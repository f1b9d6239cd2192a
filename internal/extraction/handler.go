package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/jobs"
)

// GraphWriter is the graph surface the handler writes through.
// *graph.Engine satisfies it.
type GraphWriter interface {
	UpsertNode(ctx context.Context, n graph.Node) error
	UpsertEdge(ctx context.Context, e graph.Edge) error
}

// Handler processes extraction jobs from the queue and writes the results
// into the knowledge graph.
type Handler struct {
	gen    Generator
	graph  GraphWriter
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(gen Generator, engine GraphWriter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gen: gen, graph: engine, logger: logger}
}

// Handle implements jobs.Handler. Generator errors propagate so the queue
// retries; an unknown job type completes without effect because retrying
// it could never succeed.
func (h *Handler) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobs.JobTypeRelationship:
		return h.handleRelationships(ctx, job)
	case jobs.JobTypeEntity:
		return h.handleEntities(ctx, job)
	default:
		h.logger.Warn("unknown job type, discarding",
			"job_id", job.ID, "job_type", job.Type)
		return nil
	}
}

func (h *Handler) handleRelationships(ctx context.Context, job jobs.Job) error {
	relationships, err := h.gen.ExtractRelationships(ctx, job.ChunkText)
	if err != nil {
		return err
	}
	if len(relationships) > maxExtractions {
		h.logger.Warn("truncating relationship extraction",
			"chunk_id", job.ChunkID, "count", len(relationships))
		relationships = relationships[:maxExtractions]
	}

	chunkKey := graph.ChunkKey(job.ChunkID)
	written := 0
	for _, rel := range relationships {
		relType := normalizeRelType(rel.Relationship)
		if relType == "" {
			continue
		}
		targetKey, err := h.resolveTarget(ctx, rel)
		if err != nil {
			// One bad edge does not fail the job; the rest still land.
			h.logger.Warn("skipping relationship",
				"chunk_id", job.ChunkID, "relationship", relType, "error", err)
			continue
		}
		if targetKey == "" || targetKey == chunkKey {
			continue
		}
		if err := h.graph.UpsertEdge(ctx, graph.Edge{
			From:         chunkKey,
			To:           targetKey,
			Relationship: relType,
			Source:       graph.SourceExtraction,
		}); err != nil {
			h.logger.Warn("skipping relationship edge",
				"chunk_id", job.ChunkID, "target", targetKey, "error", err)
			continue
		}
		written++
	}

	h.logger.Debug("relationship extraction stored",
		"chunk_id", job.ChunkID, "relationships", written)
	return nil
}

// resolveTarget returns the graph key a relationship points at: the named
// chunk when targetChunkId is set, otherwise an entity node upserted from
// targetConcept. An empty key means the relationship has no usable target.
func (h *Handler) resolveTarget(ctx context.Context, rel Relationship) (string, error) {
	if rel.TargetChunkID != "" {
		return graph.ChunkKey(rel.TargetChunkID), nil
	}
	if graph.Normalize(rel.TargetConcept) == "" {
		return "", nil
	}
	if err := h.upsertEntityNode(ctx, rel.TargetConcept); err != nil {
		return "", err
	}
	return graph.EntityKey(rel.TargetConcept), nil
}

func (h *Handler) handleEntities(ctx context.Context, job jobs.Job) error {
	entities, err := h.gen.ExtractEntities(ctx, job.ChunkText)
	if err != nil {
		return err
	}
	if len(entities) > maxExtractions {
		h.logger.Warn("truncating entity extraction",
			"chunk_id", job.ChunkID, "count", len(entities))
		entities = entities[:maxExtractions]
	}

	chunkKey := graph.ChunkKey(job.ChunkID)
	written := 0
	for _, entity := range entities {
		if graph.Normalize(entity) == "" {
			continue
		}
		if err := h.upsertEntityNode(ctx, entity); err != nil {
			h.logger.Warn("skipping entity",
				"chunk_id", job.ChunkID, "entity", entity, "error", err)
			continue
		}
		if err := h.graph.UpsertEdge(ctx, graph.Edge{
			From:         chunkKey,
			To:           graph.EntityKey(entity),
			Relationship: graph.RelMentions,
			Source:       graph.SourceExtraction,
		}); err != nil {
			h.logger.Warn("skipping mentions edge",
				"chunk_id", job.ChunkID, "entity", entity, "error", err)
			continue
		}
		written++
	}

	h.logger.Debug("entity extraction stored",
		"chunk_id", job.ChunkID, "entities", written)
	return nil
}

// upsertEntityNode writes the entity node for a concept. The key is
// derived from the normalized concept; the display name keeps the
// original casing.
func (h *Handler) upsertEntityNode(ctx context.Context, concept string) error {
	if graph.Normalize(concept) == "" {
		return fmt.Errorf("entity %q normalizes to nothing", concept)
	}
	return h.graph.UpsertNode(ctx, graph.Node{
		Key:  graph.EntityKey(concept),
		Type: graph.NodeEntity,
		Name: strings.TrimSpace(concept),
	})
}

// normalizeRelType lowercases and underscores a model-supplied relation
// name so "Depends On" and "depends_on" are one relationship type.
func normalizeRelType(relType string) string {
	return graph.Normalize(relType)
}
