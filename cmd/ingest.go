package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/internal/ingest"
)

var ingestFlags struct {
	userID     string
	fileID     string
	collection string
	pageURL    string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into the knowledge base",
	Long: `Ingests a document: chunks it by structure, embeds the chunks, stores
them for retrieval, and rebuilds the document's knowledge graph subtree.

The chunking strategy follows the file extension (markdown, HTML, JSON,
or plain token windows). Re-ingesting the same file id replaces the
previous content.

With --url the page is fetched and reduced to its readable article before
ingestion.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFlags.userID, "user", "local", "user id that owns the document")
	ingestCmd.Flags().StringVar(&ingestFlags.fileID, "id", "", "stable file id (default: derived from the filename or URL)")
	ingestCmd.Flags().StringVar(&ingestFlags.collection, "collection", "", "collection id to register the file under")
	ingestCmd.Flags().StringVar(&ingestFlags.pageURL, "url", "", "fetch and ingest a web page instead of a local file")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	req, err := buildIngestRequest(args)
	if err != nil {
		return err
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.pipeline.IngestFile(ctx, req)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	fmt.Printf("ingested %s: %d chunks (%s strategy)\n",
		result.FileID, result.ChunkCount, result.Strategy)

	// The graph rebuild runs asynchronously; a CLI process has to wait it
	// out before exiting. Graph failure is reported but does not undo the
	// ingest, retrieval works without the graph.
	if result.Graph != nil {
		if err := result.Graph.Wait(ctx); err != nil {
			a.logger.Warn("graph rebuild failed", "file_id", result.FileID, "error", err)
		}
	}
	return nil
}

func buildIngestRequest(args []string) (ingest.FileRequest, error) {
	req := ingest.FileRequest{
		UserID:       ingestFlags.userID,
		FileID:       ingestFlags.fileID,
		CollectionID: ingestFlags.collection,
	}

	if ingestFlags.pageURL != "" {
		if len(args) != 0 {
			return req, fmt.Errorf("pass either a file argument or --url, not both")
		}
		article, err := readability.FromURL(ingestFlags.pageURL, 30*time.Second)
		if err != nil {
			return req, fmt.Errorf("fetching %s: %w", ingestFlags.pageURL, err)
		}
		// The readable article is HTML, so the HTML chunker applies.
		req.Filename = "article.html"
		req.Content = article.Content
		req.Metadata = map[string]string{"source_url": ingestFlags.pageURL}
		if article.Title != "" {
			req.Metadata["title"] = article.Title
		}
		if req.FileID == "" {
			req.FileID = urlFileID(ingestFlags.pageURL)
		}
		return req, nil
	}

	if len(args) != 1 {
		return req, fmt.Errorf("a file argument or --url is required")
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return req, fmt.Errorf("reading %s: %w", args[0], err)
	}
	req.Filename = filepath.Base(args[0])
	req.Content = string(content)
	if req.FileID == "" {
		req.FileID = req.Filename
	}
	return req, nil
}

// urlFileID derives a stable file id from a URL, so re-ingesting the same
// page replaces its content.
func urlFileID(raw string) string {
	id := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		id = u.Host + u.Path
	}
	id = strings.Trim(id, "/")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
