package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"caseflow-backend/handlers"
	"caseflow-backend/repository"
	"caseflow-backend/service"
	"caseflow-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from project root (relative to cmd/server/)
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	// Initialize storage
	blobStorage, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	log.Println("Storage initialized")

	// Initialize repositories
	indexFile := envString("EVIDENCE_INDEX_FILE", "./data/evidence_index.json")
	dims := envInt("EMBEDDING_DIMS", service.DefaultEmbeddingDims)
	index, err := repository.NewEvidenceIndexRepository(indexFile, dims, service.EmbedText)
	if err != nil {
		log.Fatal("Failed to initialize evidence index:", err)
	}

	registry := repository.NewModelRegistry(
		envString("MODEL_ROOT", "./models"),
		envString("ACTIVE_MODEL_ID", "mortgage_linear_v1"),
	)
	replayRepo := repository.NewReplayRepository(envString("RESULTS_DIR", "./data/results"))
	traceRepo := repository.NewTraceRepository(envString("TRACES_DIR", "./data/traces"))
	provenanceRepo := repository.NewProvenanceRepository(blobStorage)

	// Initialize services
	metrics := service.NewMetricsStore()
	auditSink := service.NewAuditSink(envString("AUDIT_SINK", "log"), os.Getenv("AUDIT_JSONL_PATH"))

	config := service.UnderwriteConfig{
		Engine:         service.ParseUnderwriteEngine(envString("UNDERWRITE_ENGINE", "graph")),
		Justifier:      service.ParseJustifierProvider(envString("JUSTIFIER_PROVIDER", "deterministic")),
		DefaultTopK:    envInt("UNDERWRITE_TOP_K", 5),
		MaxCitations:   envInt("UNDERWRITE_MAX_CITATIONS", 3),
		TraceEnabled:   envBool("UNDERWRITE_TRACE_ENABLED", true),
		PersistResults: envBool("UNDERWRITE_PERSIST_RESULTS", true),
	}
	if raw := os.Getenv("UNDERWRITE_MIN_SCORE"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Fatalf("Invalid UNDERWRITE_MIN_SCORE %q: %v", raw, err)
		}
		config.MinScore = &value
	}

	underwriteService := service.NewUnderwriteService(
		service.UnderwriteWithConfig(config),
		service.UnderwriteWithEvidenceIndex(index),
		service.UnderwriteWithRiskScorer(service.NewRiskScorer(registry)),
		service.UnderwriteWithReplayRepository(replayRepo),
		service.UnderwriteWithTraceRepository(traceRepo),
		service.UnderwriteWithAuditSink(auditSink),
		service.UnderwriteWithMetrics(metrics),
	)

	// Initialize handlers
	underwriteHandler := handlers.NewUnderwriteHandler(underwriteService, replayRepo, traceRepo)
	evidenceHandler := handlers.NewEvidenceHandler(index, provenanceRepo)
	systemHandler := handlers.NewSystemHandler(metrics)

	// Setup Gin router
	r := gin.Default()
	r.Use(handlers.RequestID())

	r.GET("/health", systemHandler.Health)
	r.GET("/metrics", systemHandler.Metrics)

	// API routes
	api := r.Group("/api")
	api.Use(handlers.APIKeyAuth(os.Getenv("API_KEY_HASH")))
	{
		// Underwrite endpoints
		api.POST("/underwrite", underwriteHandler.Underwrite)
		api.POST("/underwrite/:case_id/replay/:request_id", underwriteHandler.Replay)
		api.GET("/underwrite/:case_id/results/:request_id", underwriteHandler.GetResult)
		api.GET("/underwrite/:case_id/traces/:request_id", underwriteHandler.GetTrace)

		// Evidence endpoints
		api.POST("/evidence/index", evidenceHandler.IndexDocuments)
		api.POST("/evidence/reindex", evidenceHandler.ReindexCase)
		api.POST("/evidence/search", evidenceHandler.Search)
		api.GET("/cases/:case_id/evidence/stats", evidenceHandler.GetCaseStats)
		api.DELETE("/cases/:case_id/evidence", evidenceHandler.DeleteCase)

		// Document upload
		api.POST("/documents/upload", evidenceHandler.UploadDocument)
	}

	// Ingestion run bookkeeping is only available when Postgres is configured
	if os.Getenv("DATABASE_URL") != "" {
		db, err := initPostgres()
		if err != nil {
			log.Fatal("Failed to initialize Postgres:", err)
		}
		defer db.Close()

		ingestionHandler := handlers.NewIngestionHandler(repository.NewIngestionRunRepository(db))
		api.GET("/ingestion-runs", ingestionHandler.ListRuns)
		api.GET("/ingestion-runs/:id", ingestionHandler.GetRun)
	} else {
		log.Println("DATABASE_URL not set, ingestion run endpoints disabled")
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func initPostgres() (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Postgres connection established")
	return pool, nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s %q: %v", key, raw, err)
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Fatalf("Invalid %s %q: %v", key, raw, err)
	}
	return value
}
