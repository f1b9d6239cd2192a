package extraction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ModelGenerator runs extraction through a Genkit model with structured
// output. When the model breaks the output contract the raw text goes
// through the lenient parser; if that also fails the chunk contributes
// nothing, which is the intended degradation for extraction.
type ModelGenerator struct {
	g      *genkit.Genkit
	model  string
	logger *slog.Logger
}

// NewModelGenerator creates a ModelGenerator. model is the
// provider-qualified model name (e.g. "googleai/gemini-2.5-flash").
func NewModelGenerator(g *genkit.Genkit, model string, logger *slog.Logger) *ModelGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelGenerator{g: g, model: model, logger: logger}
}

// ExtractRelationships implements Generator.
func (m *ModelGenerator) ExtractRelationships(ctx context.Context, text string) ([]Relationship, error) {
	response, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.model),
		ai.WithPrompt(fmt.Sprintf(relationshipPrompt, text)),
		ai.WithOutputType(RelationshipResult{}),
	)
	if err != nil {
		return nil, fmt.Errorf("relationship extraction: %w", err)
	}

	var result RelationshipResult
	if err := response.Output(&result); err != nil {
		if !decodeLenient(response.Text(), &result) {
			m.logger.Warn("unparseable relationship output", "error", err)
			return nil, nil
		}
	}
	return result.Relationships, nil
}

// ExtractEntities implements Generator.
func (m *ModelGenerator) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	response, err := genkit.Generate(ctx, m.g,
		ai.WithModelName(m.model),
		ai.WithPrompt(fmt.Sprintf(entityPrompt, text)),
		ai.WithOutputType(EntityResult{}),
	)
	if err != nil {
		return nil, fmt.Errorf("entity extraction: %w", err)
	}

	var result EntityResult
	if err := response.Output(&result); err != nil {
		if !decodeLenient(response.Text(), &result) {
			m.logger.Warn("unparseable entity output", "error", err)
			return nil, nil
		}
	}
	return result.Entities, nil
}
