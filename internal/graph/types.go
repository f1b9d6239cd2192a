package graph

// NodeType categorizes graph nodes. The database enforces the same set.
type NodeType string

const (
	NodeDocument NodeType = "document"
	NodeSection  NodeType = "section"
	NodeChunk    NodeType = "chunk"
	NodeEntity   NodeType = "entity"
)

// Edge relationship types written by the upsert engine and the extraction
// worker.
const (
	RelHasSection    = "has_section"
	RelHasSubsection = "has_subsection"
	RelContains      = "contains"
	RelMentions      = "mentions"
)

// Edge provenance. System edges come from document structure and are
// rebuilt on every ingest; extraction edges come from the async worker.
const (
	SourceSystem     = "system"
	SourceExtraction = "llm_extraction"
)

// Node is one knowledge graph node. ExternalID ties structure nodes back
// to their file; entity nodes leave it empty.
type Node struct {
	Key        string
	Type       NodeType
	ExternalID string
	Name       string
	Metadata   map[string]string
}

// Edge is a typed, directed connection between two nodes.
type Edge struct {
	From         string
	To           string
	Relationship string
	Source       string
}

// ChunkRef is the slice of a chunk the upsert engine needs: identity plus
// the heading levels captured during splitting.
type ChunkRef struct {
	VectorID string
	Text     string

	// Headings maps "h1".."h6" to section titles, as produced by the
	// structure-aware splitters. May be empty.
	Headings map[string]string
}
