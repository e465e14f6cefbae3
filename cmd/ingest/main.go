// Ingest loads a folder of documents (PDF, text, markdown) into the
// vector index behind internal retrieval.
//
// Usage:
//
//	ingest [-config-dir DIR] [-query "test question"] FOLDER
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/maestro-ai/maestro/pkg/config"
	"github.com/maestro-ai/maestro/pkg/ingest"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/tools"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	testQuery := flag.String("query", "",
		"Optional similarity-search query to verify the index after ingest")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: ingest [-config-dir DIR] [-query QUERY] FOLDER")
		os.Exit(2)
	}
	folder := flag.Arg(0)

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	retrieverCfg := cfg.Tools.Retriever
	if retrieverCfg.IndexPath == "" {
		slog.Error("No index path configured; set tools.retriever.index_path or RETRIEVER_INDEX_PATH")
		os.Exit(1)
	}

	providerCfg, err := cfg.DefaultLLMProvider()
	if err != nil {
		slog.Error("Failed to resolve default LLM provider", "error", err)
		os.Exit(1)
	}
	llmClient, err := llm.NewClient(providerCfg)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "provider", cfg.Defaults.LLMProvider, "error", err)
		os.Exit(1)
	}

	index, err := tools.OpenVectorIndex(retrieverCfg.IndexPath, retrieverCfg.Collection, llmClient)
	if err != nil {
		slog.Error("Failed to open vector index", "path", retrieverCfg.IndexPath, "error", err)
		os.Exit(1)
	}

	slog.Info("Ingesting folder",
		"folder", folder,
		"index_path", retrieverCfg.IndexPath,
		"collection", retrieverCfg.Collection)

	stats, err := ingest.NewIngester(index).IngestFolder(ctx, folder)
	if err != nil {
		slog.Error("Ingest failed", "error", err)
		os.Exit(1)
	}

	total, err := index.Count()
	if err != nil {
		slog.Error("Failed to count indexed chunks", "error", err)
		os.Exit(1)
	}
	slog.Info("Ingest complete",
		"files", stats.Files,
		"chunks", stats.Chunks,
		"failed", len(stats.Failed),
		"index_total", total)

	if *testQuery != "" {
		results, err := index.Query(ctx, *testQuery, retrieverCfg.TopK)
		if err != nil {
			slog.Error("Test query failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Test query results", "query", *testQuery, "hits", len(results))
		for i, res := range results {
			snippet := res.Content
			if len(snippet) > 120 {
				snippet = snippet[:120] + "..."
			}
			fmt.Printf("%d. [%.3f] %s: %s\n", i+1, res.Similarity, res.Metadata["source"], snippet)
		}
	}
}
