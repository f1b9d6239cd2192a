package chunking

import (
	"fmt"
	"strconv"
	"strings"
)

// enrichProbeLen caps the chunk prefix used to locate a chunk in the source.
// Token decoding and whitespace trimming can perturb chunk tails, so the
// probe stays short enough to survive both.
const enrichProbeLen = 48

// Enrich finalizes chunk metadata before storage: it assigns each chunk a
// byte offset into the source, records the chunk index, and resolves the
// section title from captured headings. Offsets are found with a monotonic
// forward scan so repeated text maps to successive occurrences rather than
// rewinding to the first.
func Enrich(chunks []Chunk, source string) []Chunk {
	cursor := 0
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string)
		}

		offset := locate(source, chunks[i].Text, cursor)
		if offset < 0 {
			offset = cursor
		} else {
			cursor = offset + 1
		}
		chunks[i].StartOffset = offset

		chunks[i].Metadata[MetaChunkIndex] = strconv.Itoa(chunks[i].Index)
		chunks[i].Metadata[MetaSectionTitle] = sectionTitle(chunks[i].Metadata)
	}
	return chunks
}

// locate finds the chunk text in source at or after from, probing with a
// bounded prefix. Returns -1 when the chunk cannot be anchored, which
// happens for decode-normalized or synthesized text (JSON pieces).
func locate(source, text string, from int) int {
	probe := strings.TrimSpace(text)
	if probe == "" || from >= len(source) {
		return -1
	}
	if len(probe) > enrichProbeLen {
		probe = probe[:enrichProbeLen]
	}
	idx := strings.Index(source[from:], probe)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// sectionTitle picks the deepest captured heading of level two or below.
// Top-level headings name the document, not a section, so h1 never
// qualifies. Chunks with no qualifying heading get UnknownSection.
func sectionTitle(meta map[string]string) string {
	for level := 6; level >= 2; level-- {
		if title := meta[fmt.Sprintf("h%d", level)]; title != "" {
			return title
		}
	}
	return UnknownSection
}
