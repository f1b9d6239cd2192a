package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/internal/graph"
	"github.com/koopa0/korpus/internal/knowledge"
)

var queryFlags struct {
	userID         string
	mode           string
	limit          int
	collectionID   string
	skipCollection bool
	withGraph      bool
	graphDepth     int
	graphRels      []string
	graphDirection string
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the knowledge base",
	Long: `Searches ingested documents. The default hybrid mode runs vector
similarity and full-text search and fuses the rankings; --mode vector or
--mode keyword selects a single path.

Scope resolves from the query text: collections and filenames matching
the query narrow the search. --collection pins the scope to one
collection id instead; --skip-collection-search searches everything.
--graph annotates each hit with its knowledge graph neighborhood.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryFlags.userID, "user", "local", "user id to search as")
	queryCmd.Flags().StringVar(&queryFlags.mode, "mode", "", "search mode: hybrid (default), vector, or keyword")
	queryCmd.Flags().IntVar(&queryFlags.limit, "limit", 0, "maximum number of results (default 10)")
	queryCmd.Flags().StringVar(&queryFlags.collectionID, "collection", "", "restrict the search to one collection id")
	queryCmd.Flags().BoolVar(&queryFlags.skipCollection, "skip-collection-search", false, "search all documents instead of resolving collections from the query")
	queryCmd.Flags().BoolVar(&queryFlags.withGraph, "graph", false, "annotate results with related graph nodes")
	queryCmd.Flags().IntVar(&queryFlags.graphDepth, "graph-depth", 0, "graph annotation depth (default 1)")
	queryCmd.Flags().StringSliceVar(&queryFlags.graphRels, "graph-rel", nil, "restrict graph annotation to these relationship types")
	queryCmd.Flags().StringVar(&queryFlags.graphDirection, "graph-direction", "", "graph edge direction: any (default), inbound, or outbound")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(query string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.service.Query(ctx, knowledge.QueryRequest{
		UserID:               queryFlags.userID,
		Query:                query,
		Mode:                 knowledge.SearchMode(queryFlags.mode),
		Limit:                queryFlags.limit,
		CollectionID:         queryFlags.collectionID,
		SkipCollectionSearch: queryFlags.skipCollection,
		EnableGraph:          queryFlags.withGraph,
		GraphDepth:           queryFlags.graphDepth,
		GraphRelationships:   queryFlags.graphRels,
		GraphDirection:       graph.Direction(queryFlags.graphDirection),
	})
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("[%d] %s (file: %s, score: %.4f)\n", i+1, r.VectorID, r.FileID, r.Score)
		if title := r.Metadata["section_title"]; title != "" {
			fmt.Printf("    section: %s\n", title)
		}
		for _, line := range strings.Split(strings.TrimSpace(r.Text), "\n") {
			fmt.Printf("    %s\n", line)
		}
		for _, n := range r.Related {
			fmt.Printf("    related %s (%s, depth %d): %s\n", n.Type, n.Relationship, n.Depth, n.Name)
		}
		fmt.Println()
	}
	return nil
}
