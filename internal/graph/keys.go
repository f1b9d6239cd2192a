// Package graph maintains the knowledge graph beside the chunk store:
// document, section, chunk, and entity nodes joined by typed edges. Node
// keys are pure functions of their inputs, so re-ingesting a file converges
// on the same graph instead of accumulating duplicates.
package graph

import (
	"fmt"
	"strings"
)

// Node key prefixes. Keys are deterministic: the same input always yields
// the same key.
const (
	documentKeyPrefix = "doc_"
	sectionKeyPrefix  = "section_"
	chunkKeyPrefix    = "chunk_"
	entityKeyPrefix   = "entity_"
)

// DocumentKey returns the node key for a file's document node.
func DocumentKey(fileID string) string {
	return documentKeyPrefix + fileID
}

// SectionKey returns the node key for a heading section. The key embeds the
// level, the owning document key, and the normalized title, so the same
// title at different levels or in different documents yields distinct
// nodes.
func SectionKey(level int, docKey, title string) string {
	return fmt.Sprintf("%sl%d_%s_%s", sectionKeyPrefix, level, docKey, Normalize(title))
}

// ChunkKey returns the node key for a chunk, derived from its vector id so
// graph nodes and store rows share one identity.
func ChunkKey(vectorID string) string {
	return chunkKeyPrefix + vectorID
}

// EntityKey returns the node key for an extracted concept. Normalization
// makes "Vector Search" and "vector search" the same entity.
func EntityKey(concept string) string {
	return entityKeyPrefix + Normalize(concept)
}

// Normalize lowercases, collapses runs of whitespace to single
// underscores, and drops characters outside [a-z0-9_-]. The result is
// stable across ingests and safe to embed in a key.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ', r == '\t', r == '\n', r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
