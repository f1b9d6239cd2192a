package extraction

// Prompts ask for bare JSON so the lenient parser has the best chance
// even when the model ignores the structured output contract.

const relationshipPrompt = `Extract the relationships the following text states between itself and other concepts.

Return JSON with a "relationships" array. Each element has:
  - "relationship": a short lowercase verb phrase naming the relation (e.g. "cites", "elaborates_on", "depends_on")
  - "targetConcept": the concept the text relates to

Only include relationships the text states directly. Return {"relationships": []} when there are none. Do not wrap the JSON in markdown fences.

Text:
%s`

const entityPrompt = `Extract the key entities from the following text: named concepts, technologies, systems, and domain terms.

Return JSON with an "entities" array of strings. Use the canonical name for each entity and list each one once. Return {"entities": []} when there are none. Do not wrap the JSON in markdown fences.

Text:
%s`
