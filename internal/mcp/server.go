// Package mcp exposes the pipeline over the Model Context Protocol, so
// MCP-capable clients can search the knowledge base and ingest documents
// as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/ingest"
	"github.com/koopa0/korpus/internal/knowledge"
)

// Tool names as registered with the MCP server.
const (
	ToolKnowledgeSearch = "knowledge_search"
	ToolIngestDocument  = "ingest_document"
	ToolDeleteDocument  = "delete_document"
)

// Server wraps the MCP SDK server around the pipeline's read and write
// paths.
type Server struct {
	mcpServer *mcp.Server
	service   *knowledge.Service
	pipeline  *ingest.Pipeline
	userID    string
	logger    *slog.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string

	// UserID scopes every tool call. MCP clients are single-user; the
	// scope comes from server configuration, not the wire.
	UserID string
}

// NewServer creates an MCP server with the pipeline's tools registered.
func NewServer(cfg Config, service *knowledge.Service, pipeline *ingest.Pipeline, logger *slog.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		service:  service,
		pipeline: pipeline,
		userID:   cfg.UserID,
		logger:   logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	searchSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolKnowledgeSearch, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolKnowledgeSearch,
		Description: "Search the knowledge base. Hybrid semantic and keyword retrieval " +
			"over ingested documents; scope resolves from the query text unless a " +
			"collection id is given or collection search is skipped.",
		InputSchema: searchSchema,
	}, s.Search)

	ingestSchema, err := jsonschema.For[IngestInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolIngestDocument, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolIngestDocument,
		Description: "Ingest a document into the knowledge base: chunk, embed, store, " +
			"and feed the knowledge graph. Re-ingesting a file id replaces its content.",
		InputSchema: ingestSchema,
	}, s.Ingest)

	deleteSchema, err := jsonschema.For[DeleteInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolDeleteDocument, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolDeleteDocument,
		Description: "Delete an ingested document and its knowledge graph subtree.",
		InputSchema: deleteSchema,
	}, s.Delete)

	return nil
}

// SearchInput is the knowledge_search tool input.
type SearchInput struct {
	Query                string   `json:"query" jsonschema:"The search query"`
	Mode                 string   `json:"mode,omitempty" jsonschema:"Search mode: hybrid (default), vector, or keyword"`
	Limit                int      `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
	CollectionID         string   `json:"collection_id,omitempty" jsonschema:"Restrict the search to one collection"`
	SkipCollectionSearch bool     `json:"skip_collection_search,omitempty" jsonschema:"Search all documents instead of resolving collections from the query"`
	WithGraph            bool     `json:"with_graph,omitempty" jsonschema:"Annotate results with related knowledge graph nodes"`
	GraphDepth           int      `json:"graph_depth,omitempty" jsonschema:"Traversal depth for graph annotation (default 1)"`
	GraphRelationships   []string `json:"graph_relationships,omitempty" jsonschema:"Restrict graph annotation to these relationship types"`
	GraphDirection       string   `json:"graph_direction,omitempty" jsonschema:"Edge direction for graph annotation: any (default), inbound, or outbound"`
}

// Search handles the knowledge_search tool call.
func (s *Server) Search(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	results, err := s.service.Query(ctx, knowledge.QueryRequest{
		UserID:               s.userID,
		Query:                in.Query,
		Mode:                 knowledge.SearchMode(in.Mode),
		Limit:                in.Limit,
		CollectionID:         in.CollectionID,
		SkipCollectionSearch: in.SkipCollectionSearch,
		EnableGraph:          in.WithGraph,
		GraphDepth:           in.GraphDepth,
		GraphRelationships:   in.GraphRelationships,
		GraphDirection:       graph.Direction(in.GraphDirection),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	if len(results) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "No results found."}},
		}, nil, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (file: %s, score: %.4f)\n", i+1, r.VectorID, r.FileID, r.Score)
		if title := r.Metadata["section_title"]; title != "" {
			fmt.Fprintf(&b, "    section: %s\n", title)
		}
		b.WriteString(indent(r.Text))
		for _, n := range r.Related {
			fmt.Fprintf(&b, "    related %s (%s, depth %d): %s\n", n.Type, n.Relationship, n.Depth, n.Name)
		}
		b.WriteString("\n")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, nil, nil
}

// IngestInput is the ingest_document tool input.
type IngestInput struct {
	FileID     string            `json:"file_id" jsonschema:"Stable identifier for the document; re-using it replaces the content"`
	Filename   string            `json:"filename" jsonschema:"Filename with extension; the extension selects the chunking strategy"`
	Content    string            `json:"content" jsonschema:"The document text"`
	Collection string            `json:"collection_id,omitempty" jsonschema:"Collection id to register the file under"`
	Metadata   map[string]string `json:"metadata,omitempty" jsonschema:"Extra metadata attached to every chunk"`
}

// Ingest handles the ingest_document tool call.
func (s *Server) Ingest(ctx context.Context, _ *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, any, error) {
	result, err := s.pipeline.IngestFile(ctx, ingest.FileRequest{
		UserID:       s.userID,
		FileID:       in.FileID,
		Filename:     in.Filename,
		Content:      in.Content,
		CollectionID: in.Collection,
		Metadata:     in.Metadata,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ingest failed: %w", err)
	}

	summary, _ := json.Marshal(map[string]any{
		"file_id":  result.FileID,
		"chunks":   result.ChunkCount,
		"strategy": result.Strategy,
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(summary)}},
	}, nil, nil
}

// DeleteInput is the delete_document tool input.
type DeleteInput struct {
	FileID string `json:"file_id" jsonschema:"The file id to delete"`
}

// Delete handles the delete_document tool call.
func (s *Server) Delete(ctx context.Context, _ *mcp.CallToolRequest, in DeleteInput) (*mcp.CallToolResult, any, error) {
	if err := s.pipeline.DeleteFile(ctx, s.userID, in.FileID); err != nil {
		return nil, nil, fmt.Errorf("delete failed: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "deleted " + in.FileID}},
	}, nil, nil
}

func indent(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
