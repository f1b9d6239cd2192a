package chunking

import (
	"encoding/json"
	"fmt"
)

// splitJSON is size-ceiling chunking for JSON documents. The value tree is
// decomposed (arrays per element, objects per key) until every marshaled
// piece fits the strategy's MaxSize in bytes; oversized scalars are
// hard-split. Token size and overlap do not apply to JSON.
func (c *Chunker) splitJSON(source string, s Strategy) []Chunk {
	maxSize := s.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultJSONMaxSize
	}

	var value any
	if err := json.Unmarshal([]byte(source), &value); err != nil {
		c.logger.Warn("invalid json, falling back to byte-window chunking", "error", err)
		return byteWindows(source, maxSize)
	}

	pieces := decomposeJSON(value, maxSize)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, Chunk{Text: p})
	}
	return chunks
}

// decomposeJSON renders value as compact JSON pieces no larger than maxSize
// bytes each, splitting containers before resorting to hard string splits.
func decomposeJSON(value any, maxSize int) []string {
	encoded, err := json.Marshal(value)
	if err == nil && len(encoded) <= maxSize {
		return []string{string(encoded)}
	}

	switch v := value.(type) {
	case []any:
		var pieces []string
		for _, item := range v {
			pieces = append(pieces, decomposeJSON(item, maxSize)...)
		}
		return pieces
	case map[string]any:
		var pieces []string
		for _, key := range sortedKeys(v) {
			entry := map[string]any{key: v[key]}
			encoded, err := json.Marshal(entry)
			if err == nil && len(encoded) <= maxSize {
				pieces = append(pieces, string(encoded))
				continue
			}
			// Entry itself is oversized: decompose the value and prefix
			// each piece with its key path for traceability.
			for _, sub := range decomposeJSON(v[key], maxSize) {
				pieces = append(pieces, fmt.Sprintf("%q: %s", key, sub))
			}
		}
		return pieces
	default:
		if err != nil {
			return nil
		}
		return splitEncoded(string(encoded), maxSize)
	}
}

// splitEncoded hard-splits an encoded scalar into maxSize byte windows.
func splitEncoded(encoded string, maxSize int) []string {
	var pieces []string
	for start := 0; start < len(encoded); start += maxSize {
		end := min(start+maxSize, len(encoded))
		pieces = append(pieces, encoded[start:end])
	}
	return pieces
}

// byteWindows chunks raw text into fixed byte windows; the fallback for
// documents that claim to be JSON but do not parse.
func byteWindows(text string, size int) []Chunk {
	var chunks []Chunk
	for start := 0; start < len(text); start += size {
		end := min(start+size, len(text))
		chunks = append(chunks, Chunk{Text: text[start:end]})
	}
	return chunks
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic order keeps re-chunking reproducible, which the
	// deterministic vector_id contract depends on.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
