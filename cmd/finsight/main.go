package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"finsight/internal/assembler"
	"finsight/internal/chunker"
	"finsight/internal/companies"
	"finsight/internal/config"
	"finsight/internal/domain"
	"finsight/internal/embedding"
	"finsight/internal/generation"
	"finsight/internal/ingest"
	"finsight/internal/retriever"
	"finsight/internal/scheduler"
	"finsight/internal/service"
	"finsight/internal/tui"
	"finsight/internal/vectorstore/memory"
	"finsight/internal/vectorstore/postgres"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, symbol string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/finsight/config.yaml if not provided)")
	flag.StringVar(&symbol, "symbol", "", "Symbol to ingest the given files under")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) > 0 && symbol == "" {
		fmt.Println("Usage: finsight [--config=config.yaml] [--symbol=TCS file1.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hash", "":
		emb = embedding.NewHashEmbedder(cfg.Embedder.Dimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embedding.NewClient(embedding.Config{
			BaseURL:      cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:    cfg.Embedder.OpenAI.APIKeyEnv,
			Model:        cfg.Embedder.OpenAI.Model,
			Timeout:      time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			BatchSize:    cfg.Embedder.OpenAI.BatchSize,
			RateLimitRPS: cfg.Embedder.OpenAI.RateLimitRPS,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	ch, err := chunker.New(cfg.Chunker.MaxChars, cfg.Chunker.OverlapChars)
	if err != nil {
		log.Fatalf("chunker init failed: %v", err)
	}

	ctx := context.Background()
	var store domain.VectorStore
	var dir domain.Directory
	switch cfg.Store.Type {
	case "memory", "":
		store = memory.NewStore()
		dir = companies.NewMemoryDirectory(companies.DefaultSimilarityThreshold)
	case "postgres":
		if cfg.Store.Postgres == nil {
			log.Fatalf("postgres config missing")
		}
		dsn := os.Getenv(cfg.Store.Postgres.DSNEnv)
		if dsn == "" {
			log.Fatalf("missing database DSN in env %s", cfg.Store.Postgres.DSNEnv)
		}
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer db.Close()
		pgStore, err := postgres.NewStore(db, cfg.Embedder.Dimension)
		if err != nil {
			log.Fatalf("vector store init failed: %v", err)
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("vector store schema setup failed: %v", err)
		}
		pgDir := companies.NewPostgresDirectory(db, companies.DefaultSimilarityThreshold)
		if err := pgDir.EnsureSchema(ctx); err != nil {
			log.Fatalf("company directory schema setup failed: %v", err)
		}
		store = pgStore
		dir = pgDir
	default:
		log.Fatalf("unknown store: %s", cfg.Store.Type)
	}

	gen, err := generation.NewClient(generation.Config{
		BaseURL:      cfg.Generator.BaseURL,
		APIKeyEnv:    cfg.Generator.APIKeyEnv,
		Model:        cfg.Generator.Model,
		Timeout:      time.Duration(cfg.Generator.TimeoutSecs) * time.Second,
		RateLimitRPS: cfg.Generator.RateLimitRPS,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	pipeline := ingest.New(ch, emb, store, ingest.WithLogger(logger))
	if symbol != "" {
		docs, err := readDocuments(inputs)
		if err != nil {
			log.Fatalf("reading input files: %v", err)
		}
		if err := pipeline.Ingest(ctx, symbol, docs); err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
	}

	if cfg.Refresh.Enabled && symbol != "" {
		sched := scheduler.New(pipeline, dir, logger)
		// The CLI only has documents for the symbol given on the
		// command line, so only that symbol is tracked.
		fetch := func(context.Context, string) ([]domain.RawDocument, error) {
			return readDocuments(inputs)
		}
		if err := sched.TrackSymbols(cfg.Refresh.CronSpec, []string{symbol}, fetch); err != nil {
			log.Fatalf("refresh schedule invalid: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	ret := retriever.New(emb, store, dir,
		retriever.WithMinConfidence(cfg.Retrieval.MinConfidence),
		retriever.WithLogger(logger))
	asm, err := assembler.New(domain.ContextBudget{
		MaxChunks: cfg.Retrieval.MaxChunks,
		MaxChars:  cfg.Retrieval.MaxChars,
	})
	if err != nil {
		log.Fatalf("context budget invalid: %v", err)
	}
	svc := service.New(ret, asm, gen,
		service.WithLogger(logger),
		service.WithGenerateOptions(domain.GenerateOptions{
			Temperature:     cfg.Generator.Temperature,
			MaxOutputTokens: cfg.Generator.MaxOutputTokens,
		}))

	m := tui.New(svc, cfg.Retrieval.TopK)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

// readDocuments loads each file as one raw document. The revision is
// the file's modification time, so an unchanged file re-ingests as a
// no-op.
func readDocuments(paths []string) ([]domain.RawDocument, error) {
	docs := make([]domain.RawDocument, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, domain.RawDocument{
			Text:     string(data),
			Revision: info.ModTime().UTC().Format(time.RFC3339),
		})
	}
	return docs, nil
}
