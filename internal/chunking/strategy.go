// Package chunking splits document text into ordered chunks with structural
// metadata. The strategy selector is a pure mapping from file extension to
// chunk parameters; splitting itself is file-type aware (markdown and HTML
// keep heading structure, JSON decomposes values under a size ceiling, and
// everything else falls back to fixed-size token windows).
package chunking

import "strings"

// Kind identifies a splitting strategy.
type Kind string

const (
	// KindToken is fixed-size token-window chunking, the default.
	KindToken Kind = "token"

	// KindMarkdown is structure-aware chunking with heading capture.
	KindMarkdown Kind = "markdown"

	// KindHTML is structure-aware chunking over parsed HTML blocks.
	KindHTML Kind = "html"

	// KindJSON is size-ceiling chunking that decomposes JSON values.
	KindJSON Kind = "json"
)

const (
	// DefaultStructuredSize is the token budget for markdown and HTML
	// chunks. Structured content carries its own boundaries, so it can
	// afford a larger default than plain text.
	DefaultStructuredSize = 512

	// DefaultHeadingDepth bounds markdown heading capture: headings deeper
	// than this level do not open a new section.
	DefaultHeadingDepth = 3

	// DefaultJSONMaxSize is the byte ceiling for a single JSON chunk.
	DefaultJSONMaxSize = 1024
)

// Params is the base parameter set applied to unstructured file types.
type Params struct {
	Size    int // chunk size in tokens
	Overlap int // overlap between consecutive chunks in tokens
}

// Strategy is a concrete, fully-resolved chunking descriptor.
type Strategy struct {
	Kind    Kind
	Size    int // token budget per chunk (unused for KindJSON)
	Overlap int // token overlap (unused for KindJSON)

	// MaxSize is the byte ceiling for KindJSON chunks; size/overlap are
	// not meaningful for JSON decomposition and are zeroed.
	MaxSize int

	// HeadingDepth bounds heading capture for KindMarkdown.
	HeadingDepth int
}

// SelectStrategy maps a file extension to a chunking strategy.
// The mapping is pure and total: every input yields a defined strategy and
// unknown extensions fall back to token-window chunking with the base
// parameters. The extension is matched case-insensitively, with or without
// the leading dot.
func SelectStrategy(ext string, base Params) Strategy {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "md", "markdown":
		return Strategy{
			Kind:         KindMarkdown,
			Size:         DefaultStructuredSize,
			Overlap:      base.Overlap,
			HeadingDepth: DefaultHeadingDepth,
		}
	case "html", "htm":
		return Strategy{
			Kind:    KindHTML,
			Size:    DefaultStructuredSize,
			Overlap: base.Overlap,
		}
	case "json":
		return Strategy{
			Kind:    KindJSON,
			MaxSize: DefaultJSONMaxSize,
		}
	default:
		return Strategy{
			Kind:    KindToken,
			Size:    base.Size,
			Overlap: base.Overlap,
		}
	}
}
