package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"caseflow-backend/models"
	"caseflow-backend/repository"
	"caseflow-backend/service"
	"caseflow-backend/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// index-evidence walks a directory of plain-text case documents laid out as
// <source>/<case_id>/<document_id>.txt, records provenance for each file,
// and indexes the chunks into the evidence index. When DATABASE_URL is set
// the batch is recorded as an ingestion run.
func main() {
	sourceDir := flag.String("source", "./case_documents", "directory of case documents")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	blobStorage, err := storage.NewStorageFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	provenanceRepo := repository.NewProvenanceRepository(blobStorage)

	indexFile := os.Getenv("EVIDENCE_INDEX_FILE")
	if indexFile == "" {
		indexFile = "./data/evidence_index.json"
	}
	index, err := repository.NewEvidenceIndexRepository(indexFile, service.DefaultEmbeddingDims, service.EmbedText)
	if err != nil {
		log.Fatalf("Failed to initialize evidence index: %v", err)
	}

	ctx := context.Background()

	var runRepo *repository.IngestionRunRepository
	var run *models.IngestionRun
	if connString := os.Getenv("DATABASE_URL"); connString != "" {
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()

		runRepo = repository.NewIngestionRunRepository(pool)
		run = &models.IngestionRun{
			Status:     models.IngestionRunRunning,
			SourcePath: *sourceDir,
			Bucket:     os.Getenv("AWS_S3_BUCKET"),
			Prefix:     "cases/",
		}
		if err := runRepo.Create(ctx, run); err != nil {
			log.Fatalf("Failed to record ingestion run: %v", err)
		}
		log.Printf("Ingestion run %s started", run.ID)
	}

	fileCount, totalBytes, sampleKeys, err := indexDirectory(ctx, *sourceDir, provenanceRepo, index)
	if runRepo != nil {
		if err != nil {
			if failErr := runRepo.Fail(ctx, run.ID, err.Error()); failErr != nil {
				log.Printf("Warning: failed to mark run failed: %v", failErr)
			}
		} else if completeErr := runRepo.Complete(ctx, run.ID, fileCount, totalBytes, sampleKeys); completeErr != nil {
			log.Printf("Warning: failed to mark run completed: %v", completeErr)
		}
	}
	if err != nil {
		log.Fatalf("Indexing failed: %v", err)
	}

	fmt.Printf("\n✅ Indexed %d documents (%d bytes)\n", fileCount, totalBytes)
}

func indexDirectory(ctx context.Context, sourceDir string, provenanceRepo *repository.ProvenanceRepository, index *repository.EvidenceIndexRepository) (int, int64, []string, error) {
	caseDirs, err := os.ReadDir(sourceDir)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	fileCount := 0
	var totalBytes int64
	var sampleKeys []string

	for _, caseDir := range caseDirs {
		if !caseDir.IsDir() {
			continue
		}
		caseID := caseDir.Name()

		files, err := os.ReadDir(filepath.Join(sourceDir, caseID))
		if err != nil {
			return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to read case directory %s: %w", caseID, err)
		}

		var chunks []models.EvidenceChunk
		for _, file := range files {
			if file.IsDir() || !strings.HasSuffix(file.Name(), ".txt") {
				continue
			}
			documentID := strings.TrimSuffix(file.Name(), ".txt")
			path := filepath.Join(sourceDir, caseID, file.Name())

			data, err := os.ReadFile(path)
			if err != nil {
				return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to read %s: %w", path, err)
			}

			extracted, err := service.ExtractText(data, "text/plain")
			if err != nil {
				return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to extract %s: %w", path, err)
			}

			event := &models.ProvenanceEvent{
				CaseID:      caseID,
				DocumentID:  documentID,
				Filename:    file.Name(),
				ContentType: "text/plain",
				SHA256:      extracted.SHA256,
				ExtractionMeta: extracted.Meta,
			}
			if err := provenanceRepo.SaveDocument(ctx, event, extracted.Text); err != nil {
				return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to store provenance for %s: %w", path, err)
			}

			docChunks, err := service.ChunkText(caseID, documentID, extracted.Text, file.Name(),
				service.DefaultChunkSize, service.DefaultOverlap)
			if err != nil {
				return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to chunk %s: %w", path, err)
			}
			chunks = append(chunks, docChunks...)

			fileCount++
			totalBytes += int64(len(data))
			if len(sampleKeys) < 5 {
				sampleKeys = append(sampleKeys, event.TextKey)
			}
		}

		if len(chunks) == 0 {
			continue
		}
		indexed, err := index.AddDocuments(chunks)
		if err != nil {
			return fileCount, totalBytes, sampleKeys, fmt.Errorf("failed to index case %s: %w", caseID, err)
		}
		log.Printf("✓ Indexed case %s: %d chunks", caseID, indexed)
	}

	return fileCount, totalBytes, sampleKeys, nil
}
