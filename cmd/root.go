// Package cmd contains the korpus command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "korpus",
	Short: "Korpus - document ingestion and hybrid retrieval pipeline",
	Long: `Korpus ingests documents into a PostgreSQL-backed knowledge base:
it chunks them by structure, embeds the chunks, and maintains a knowledge
graph of sections, chunks, and extracted entities.

Retrieval combines vector similarity and full-text search with reciprocal
rank fusion, optionally annotated with the graph neighborhood of each hit.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
