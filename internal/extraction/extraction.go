// Package extraction runs the model-backed enrichment jobs: pulling
// concept relationships and entity mentions out of chunk text and writing
// them into the knowledge graph as llm_extraction edges. Extraction is
// best-effort; a model that returns nothing usable produces an empty
// result, not a failed job.
package extraction

import "context"

// Relationship is one directed relation found in a chunk, anchored at the
// chunk itself. The target is either another chunk by id or a named
// concept; when both are set the chunk id wins.
type Relationship struct {
	Relationship  string `json:"relationship"`
	TargetConcept string `json:"targetConcept,omitempty"`
	TargetChunkID string `json:"targetChunkId,omitempty"`
}

// RelationshipResult is the structured output schema for relationship
// extraction.
type RelationshipResult struct {
	Relationships []Relationship `json:"relationships"`
}

// EntityResult is the structured output schema for entity extraction.
type EntityResult struct {
	Entities []string `json:"entities"`
}

// Generator produces extractions from chunk text. The production
// implementation talks to a Genkit model; tests script it.
type Generator interface {
	ExtractRelationships(ctx context.Context, text string) ([]Relationship, error)
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// maxExtractions caps how many relationships or entities a single chunk
// may contribute. Models occasionally hallucinate long lists; past this
// point the additions are noise.
const maxExtractions = 20
