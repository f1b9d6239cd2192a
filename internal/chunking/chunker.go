package chunking

import (
	"log/slog"
	"strings"
)

// Metadata keys attached to chunks. Heading keys h1..h6 are produced by the
// structure-aware splitters; section_title and chunk_index by the enricher
// and the ingestion pipeline.
const (
	MetaFileType     = "file_type"
	MetaChunkIndex   = "chunk_index"
	MetaSectionTitle = "section_title"
)

// UnknownSection is the sentinel section title for chunks with no preceding
// heading. Downstream code relies on the field always being set.
const UnknownSection = "Unknown Section"

// Chunk is one ordered slice of a document's text.
type Chunk struct {
	Text        string
	Index       int
	StartOffset int // byte offset into the source text, set by Enrich
	Metadata    map[string]string
}

// Chunker splits document text according to a Strategy.
//
// Chunker is safe for concurrent use when its Tokenizer is.
type Chunker struct {
	tok    Tokenizer
	logger *slog.Logger
}

// NewChunker creates a Chunker.
// A nil tokenizer selects the default cl100k_base tokenizer; a nil logger
// uses slog.Default().
func NewChunker(tok Tokenizer, logger *slog.Logger) *Chunker {
	if tok == nil {
		tok = NewTokenizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{tok: tok, logger: logger}
}

// Split divides text into ordered chunks per the strategy.
// Empty or whitespace-only input yields zero chunks; callers treat that as
// a no-op, not an error.
func (c *Chunker) Split(text string, s Strategy) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	switch s.Kind {
	case KindMarkdown:
		chunks = c.splitMarkdown(text, s)
	case KindHTML:
		chunks = c.splitHTML(text, s)
	case KindJSON:
		chunks = c.splitJSON(text, s)
	default:
		chunks = c.splitTokens(text, s, nil)
	}

	for i := range chunks {
		chunks[i].Index = i
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string)
		}
	}

	c.logger.Debug("document split",
		"strategy", string(s.Kind),
		"chunks", len(chunks))
	return chunks
}

// splitTokens is fixed-size token-window chunking. Consecutive windows
// advance by size-overlap tokens; every chunk inherits the given heading
// metadata (may be nil).
func (c *Chunker) splitTokens(text string, s Strategy, headings map[string]string) []Chunk {
	size := s.Size
	if size <= 0 {
		size = DefaultStructuredSize
	}
	overlap := s.Overlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	tokens := c.tok.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))

		piece := strings.TrimSpace(c.tok.Decode(tokens[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{
				Text:     piece,
				Metadata: cloneMetadata(headings),
			})
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
