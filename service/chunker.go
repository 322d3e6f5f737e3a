package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"caseflow-backend/models"
)

// Default chunking parameters for evidence indexing.
const (
	DefaultChunkSize = 700
	DefaultOverlap   = 100
)

// ChunkText splits extracted document text into fixed-size overlapping
// windows. Identical inputs always yield identical chunk boundaries and ids.
// Empty text produces an empty slice, not an error.
func ChunkText(caseID, documentID, text, source string, chunkSize, overlap int) ([]models.EvidenceChunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk_size must be > 0", models.ErrInvalidConfiguration)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be >= 0", models.ErrInvalidConfiguration)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be smaller than chunk_size", models.ErrInvalidConfiguration)
	}

	if text == "" {
		return []models.EvidenceChunk{}, nil
	}

	// Windows and offsets count characters, not bytes, so multi-byte runes
	// never split across chunk boundaries.
	runes := []rune(text)
	step := chunkSize - overlap
	textLen := len(runes)
	chunks := make([]models.EvidenceChunk, 0, textLen/step+1)

	for start := 0; start < textLen; start += step {
		end := start + chunkSize
		if end > textLen {
			end = textLen
		}
		chunks = append(chunks, models.EvidenceChunk{
			CaseID:     caseID,
			DocumentID: documentID,
			ChunkID:    chunkID(caseID, documentID, start, end),
			Text:       string(runes[start:end]),
			StartChar:  start,
			EndChar:    end,
			Source:     source,
		})
		if end >= textLen {
			break
		}
	}

	return chunks, nil
}

// chunkID derives a stable 16-hex-char identifier from the chunk's address.
func chunkID(caseID, documentID string, start, end int) string {
	key := fmt.Sprintf("%s|%s|%d|%d", caseID, documentID, start, end)
	digest := sha256.Sum256([]byte(key))
	return hex.EncodeToString(digest[:])[:16]
}
