package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/askweb/askweb-go/internal/prompts"
	"github.com/askweb/askweb-go/internal/provider"
	"github.com/askweb/askweb-go/internal/retrieval"
	"github.com/askweb/askweb-go/internal/server"
	"github.com/askweb/askweb-go/internal/store"
)

// buildJudge constructs the two-tier LLM judge from the environment.
func buildJudge(ctx context.Context, log *slog.Logger) (*provider.LLMJudge, error) {
	cfg := provider.ConfigFromEnv()
	judge, err := provider.NewJudge(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialising model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model_low", cfg.Models.Low),
		slog.String("model_high", cfg.Models.High),
	)
	return judge, nil
}

// buildRetrieval constructs the vector store, embedder, and retriever from
// the environment. The returned close function releases the store.
func buildRetrieval(ctx context.Context, log *slog.Logger) (retrieval.Retriever, retrieval.VectorStore, retrieval.Embedder, func(), error) {
	store, err := retrieval.NewStoreFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initialising vector store: %w", err)
	}

	embedder, err := retrieval.NewEmbedderFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, nil, fmt.Errorf("initialising embedder: %w", err)
	}

	retriever, err := retrieval.NewRetriever(embedder, store, 0)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, nil, fmt.Errorf("initialising retriever: %w", err)
	}

	log.Info("retrieval initialised",
		slog.String("backend", getEnvOrDefault("RETRIEVAL_BACKEND", "qdrant")),
		slog.String("embedding_provider", getEnvOrDefault("EMBEDDING_PROVIDER", "ollama")),
	)

	closeFn := func() { _ = store.Close() }
	return retriever, store, embedder, closeFn, nil
}

// loadPrompts loads the per-site prompt library named by PROMPTS_FILE.
// A missing or unreadable library is non-fatal; the built-in prompts apply.
func loadPrompts(log *slog.Logger) prompts.Resolver {
	path := os.Getenv("PROMPTS_FILE")
	if path == "" {
		return nil
	}
	lib, err := prompts.LoadLibrary(path)
	if err != nil {
		log.Warn("prompts: failed to load library, using built-ins",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return nil
	}
	log.Info("prompts: library loaded", slog.String("path", path))
	return lib
}

// buildPingers collects readiness probes from the retrieval dependencies
// that support them.
func buildPingers(deps ...any) []server.Pinger {
	var pingers []server.Pinger
	for _, d := range deps {
		if p, ok := d.(server.Pinger); ok {
			pingers = append(pingers, p)
		}
	}
	return pingers
}

// turnSourceOrNil converts a possibly-nil history store into the server's
// history interface without smuggling a typed nil through.
func turnSourceOrNil(hs *store.SQLiteStore) server.TurnSource {
	if hs == nil {
		return nil
	}
	return hs
}

// getEnvOrDefault returns the environment variable's value, or fallback when
// unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the environment variable parsed as an int, or fallback
// when unset or unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
