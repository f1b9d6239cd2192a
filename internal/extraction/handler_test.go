package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/jobs"
)

// scriptedGenerator returns fixed extractions.
type scriptedGenerator struct {
	relationships []Relationship
	entities      []string
	err           error
}

func (g *scriptedGenerator) ExtractRelationships(_ context.Context, _ string) ([]Relationship, error) {
	return g.relationships, g.err
}

func (g *scriptedGenerator) ExtractEntities(_ context.Context, _ string) ([]string, error) {
	return g.entities, g.err
}

// recordingGraph captures graph writes. Edges pointing at failEdgeTo are
// rejected to exercise per-edge degradation.
type recordingGraph struct {
	nodes      []graph.Node
	edges      []graph.Edge
	failEdgeTo string
}

func (r *recordingGraph) UpsertNode(_ context.Context, n graph.Node) error {
	r.nodes = append(r.nodes, n)
	return nil
}

func (r *recordingGraph) UpsertEdge(_ context.Context, e graph.Edge) error {
	if r.failEdgeTo != "" && e.To == r.failEdgeTo {
		return errors.New("edge rejected")
	}
	r.edges = append(r.edges, e)
	return nil
}

func (r *recordingGraph) hasEdge(from, to, relationship string) bool {
	for _, e := range r.edges {
		if e.From == from && e.To == to && e.Relationship == relationship {
			return true
		}
	}
	return false
}

func extractionJob(jobType string) jobs.Job {
	return jobs.Job{
		ID:        uuid.New(),
		Type:      jobType,
		ChunkID:   "f1_chunk_0",
		ChunkText: "korpus depends on pgvector",
	}
}

func TestHandleRelationships(t *testing.T) {
	gen := &scriptedGenerator{relationships: []Relationship{
		{Relationship: "depends_on", TargetConcept: "pgvector"},
		{Relationship: "elaborates_on", TargetChunkID: "f1_chunk_2"},
	}}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeRelationship)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	chunkKey := graph.ChunkKey("f1_chunk_0")
	entityKey := graph.EntityKey("pgvector")

	// Only the concept target produces a node; the chunk target already
	// exists in the graph.
	if len(g.nodes) != 1 || g.nodes[0].Key != entityKey || g.nodes[0].Type != graph.NodeEntity {
		t.Fatalf("nodes = %+v, want one pgvector entity", g.nodes)
	}
	if !g.hasEdge(chunkKey, entityKey, "depends_on") {
		t.Errorf("missing concept edge; edges = %+v", g.edges)
	}
	if !g.hasEdge(chunkKey, graph.ChunkKey("f1_chunk_2"), "elaborates_on") {
		t.Errorf("missing chunk edge; edges = %+v", g.edges)
	}
	for _, e := range g.edges {
		if e.Source != graph.SourceExtraction {
			t.Errorf("edge %+v has source %q, want %q", e, e.Source, graph.SourceExtraction)
		}
	}
}

func TestHandleRelationshipsSkipsDegenerate(t *testing.T) {
	gen := &scriptedGenerator{relationships: []Relationship{
		{Relationship: "", TargetConcept: "pgvector"},
		{Relationship: "depends_on"},
		{Relationship: "uses", TargetConcept: "!!!"},
		{Relationship: "elaborates_on", TargetChunkID: "f1_chunk_0"},
	}}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeRelationship)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(g.nodes) != 0 || len(g.edges) != 0 {
		t.Errorf("degenerate relationships were written: nodes=%d edges=%d",
			len(g.nodes), len(g.edges))
	}
}

func TestHandleRelationshipTypeNormalized(t *testing.T) {
	gen := &scriptedGenerator{relationships: []Relationship{
		{Relationship: "Depends On", TargetConcept: "b"},
	}}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeRelationship)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !g.hasEdge(graph.ChunkKey("f1_chunk_0"), graph.EntityKey("b"), "depends_on") {
		t.Errorf("relationship type not normalized; edges = %+v", g.edges)
	}
}

func TestHandleRelationshipsEdgeFailureSkipped(t *testing.T) {
	gen := &scriptedGenerator{relationships: []Relationship{
		{Relationship: "cites", TargetChunkID: "missing_chunk"},
		{Relationship: "depends_on", TargetConcept: "pgvector"},
	}}
	g := &recordingGraph{failEdgeTo: graph.ChunkKey("missing_chunk")}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeRelationship)); err != nil {
		t.Fatalf("one bad edge failed the job: %v", err)
	}
	if !g.hasEdge(graph.ChunkKey("f1_chunk_0"), graph.EntityKey("pgvector"), "depends_on") {
		t.Errorf("surviving relationship missing; edges = %+v", g.edges)
	}
	if len(g.edges) != 1 {
		t.Errorf("edges = %+v, want only the surviving one", g.edges)
	}
}

func TestHandleEntities(t *testing.T) {
	gen := &scriptedGenerator{entities: []string{"Vector Search", "RRF", "   "}}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeEntity)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(g.nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (blank entity skipped)", len(g.nodes))
	}

	chunkKey := graph.ChunkKey("f1_chunk_0")
	if !g.hasEdge(chunkKey, graph.EntityKey("Vector Search"), graph.RelMentions) {
		t.Errorf("missing mentions edge; edges = %+v", g.edges)
	}

	// Entity names keep the original casing for display.
	if g.nodes[0].Name != "Vector Search" {
		t.Errorf("entity name = %q, want original concept text", g.nodes[0].Name)
	}
}

func TestHandleGeneratorError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	gen := &scriptedGenerator{err: wantErr}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	err := h.Handle(context.Background(), extractionJob(jobs.JobTypeEntity))
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want generator error to propagate for retry", err)
	}
	if len(g.nodes) != 0 {
		t.Errorf("nodes written despite generator error")
	}
}

func TestHandleUnknownJobType(t *testing.T) {
	gen := &scriptedGenerator{}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob("summarize")); err != nil {
		t.Errorf("unknown job type returned %v, want nil discard", err)
	}
	if len(g.nodes) != 0 || len(g.edges) != 0 {
		t.Errorf("unknown job type wrote to the graph")
	}
}

func TestHandleTruncatesExcessExtractions(t *testing.T) {
	entities := make([]string, maxExtractions+10)
	for i := range entities {
		entities[i] = "entity" + string(rune('a'+i%26)) + string(rune('a'+i/26))
	}
	gen := &scriptedGenerator{entities: entities}
	g := &recordingGraph{}
	h := NewHandler(gen, g, nil)

	if err := h.Handle(context.Background(), extractionJob(jobs.JobTypeEntity)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(g.nodes) != maxExtractions {
		t.Errorf("got %d nodes, want cap of %d", len(g.nodes), maxExtractions)
	}
}
