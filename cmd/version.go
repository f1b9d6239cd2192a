package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	fmt.Printf("Korpus %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Configuration: not loadable (%v)\n", err)
		return nil
	}

	fmt.Println("Configuration:")
	fmt.Printf("  Model: %s\n", cfg.ModelName)
	fmt.Printf("  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Printf("  Chunk size: %d tokens (overlap %d)\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Printf("  Database: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	// Report API key presence without showing the full value.
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if len(geminiKey) >= 8 {
		fmt.Printf("  GEMINI_API_KEY: %s...%s (configured)\n",
			geminiKey[:4], geminiKey[len(geminiKey)-4:])
	} else if geminiKey != "" {
		fmt.Println("  GEMINI_API_KEY: configured")
	} else {
		fmt.Println("  GEMINI_API_KEY: Not set")
		fmt.Println()
		fmt.Println("Hint: set the GEMINI_API_KEY environment variable")
		fmt.Println("  export GEMINI_API_KEY=your-api-key")
	}

	return nil
}
