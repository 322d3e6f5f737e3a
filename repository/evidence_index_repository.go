package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"caseflow-backend/models"
)

// EmbedFunc turns text into a fixed-dimension embedding vector.
type EmbedFunc func(text string, dims int) ([]float64, error)

// EvidenceIndexRepository is a persisted, case-partitioned collection of
// chunk embeddings. The whole index is one JSON array, read fully into
// memory on access and rewritten fully on mutation; records are kept sorted
// by (case_id, document_id, chunk_id) for stable diffs. An mtime-keyed
// in-process cache avoids re-parsing on repeated reads. Mutations are
// serialized by a mutex and written via temp-file rename with a
// read-version check, so a concurrent external write surfaces as
// ErrWriteConflict instead of a silent lost update. Adequate only for
// small, per-case corpora.
type EvidenceIndexRepository struct {
	indexFile string
	dims      int
	embed     EmbedFunc

	mu           sync.Mutex
	cachedMtime  time.Time
	cachedExists bool
	cachedValid  bool
	cached       []models.IndexRecord
}

// NewEvidenceIndexRepository creates an index persisted at indexFile with
// the given embedding dimension.
func NewEvidenceIndexRepository(indexFile string, dims int, embed EmbedFunc) (*EvidenceIndexRepository, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dims must be > 0", models.ErrInvalidConfiguration)
	}
	if err := os.MkdirAll(filepath.Dir(indexFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	return &EvidenceIndexRepository{
		indexFile: indexFile,
		dims:      dims,
		embed:     embed,
	}, nil
}

// AddDocuments upserts chunks by (case_id, document_id, chunk_id) and
// returns the count of chunks submitted, not the net change.
func (r *EvidenceIndexRepository) AddDocuments(chunks []models.EvidenceChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, version, err := r.loadLocked()
	if err != nil {
		return 0, err
	}

	byKey := make(map[string]models.IndexRecord, len(records)+len(chunks))
	for _, record := range records {
		byKey[recordKey(record.CaseID, record.DocumentID, record.ChunkID)] = record
	}
	for _, chunk := range chunks {
		record, err := r.recordFromChunk(chunk)
		if err != nil {
			return 0, err
		}
		byKey[recordKey(chunk.CaseID, chunk.DocumentID, chunk.ChunkID)] = record
	}

	merged := make([]models.IndexRecord, 0, len(byKey))
	for _, record := range byKey {
		merged = append(merged, record)
	}

	if err := r.writeLocked(merged, version); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// OverwriteCase atomically replaces all records for one case, preserving
// records of other cases.
func (r *EvidenceIndexRepository) OverwriteCase(caseID string, chunks []models.EvidenceChunk) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, version, err := r.loadLocked()
	if err != nil {
		return 0, err
	}

	merged := make([]models.IndexRecord, 0, len(records)+len(chunks))
	for _, record := range records {
		if record.CaseID != caseID {
			merged = append(merged, record)
		}
	}
	for _, chunk := range chunks {
		record, err := r.recordFromChunk(chunk)
		if err != nil {
			return 0, err
		}
		merged = append(merged, record)
	}

	if err := r.writeLocked(merged, version); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Search embeds the query, scores every record scoped to caseID (all cases
// when caseID is ""), filters by minScore when non-nil, and returns at most
// topK results ordered by (-score, document_id, chunk_id).
func (r *EvidenceIndexRepository) Search(query string, topK int, caseID string, minScore *float64) ([]models.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be > 0", models.ErrInvalidArgument)
	}

	queryVector, err := r.embed(query, r.dims)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	r.mu.Lock()
	records, _, err := r.loadLocked()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(records))
	for _, record := range records {
		if caseID != "" && record.CaseID != caseID {
			continue
		}
		if len(record.Embedding) != r.dims {
			continue
		}

		var score float64
		for i := range queryVector {
			score += queryVector[i] * record.Embedding[i]
		}
		if minScore != nil && score < *minScore {
			continue
		}
		results = append(results, models.SearchResult{Chunk: record.EvidenceChunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Chunk.DocumentID != results[j].Chunk.DocumentID {
			return results[i].Chunk.DocumentID < results[j].Chunk.DocumentID
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CaseStats returns the chunk count and per-document breakdown for one case
// plus the index file's last-modified timestamp.
func (r *EvidenceIndexRepository) CaseStats(caseID string) (*models.CaseStats, error) {
	r.mu.Lock()
	records, _, err := r.loadLocked()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	docCounts := make(map[string]int)
	numChunks := 0
	for _, record := range records {
		if record.CaseID != caseID {
			continue
		}
		numChunks++
		docCounts[record.DocumentID]++
	}

	docIDs := make([]string, 0, len(docCounts))
	for docID := range docCounts {
		docIDs = append(docIDs, docID)
	}
	sort.Strings(docIDs)

	stats := &models.CaseStats{
		NumChunks: numChunks,
		Documents: make([]models.DocumentStats, 0, len(docIDs)),
	}
	for _, docID := range docIDs {
		stats.Documents = append(stats.Documents, models.DocumentStats{
			DocumentID: docID,
			NumChunks:  docCounts[docID],
		})
	}

	if info, statErr := os.Stat(r.indexFile); statErr == nil {
		stats.UpdatedAt = info.ModTime().UTC().Format("2006-01-02T15:04:05Z")
	}
	return stats, nil
}

// DeleteCase removes all records for one case and returns the removed count.
func (r *EvidenceIndexRepository) DeleteCase(caseID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, version, err := r.loadLocked()
	if err != nil {
		return 0, err
	}

	kept := make([]models.IndexRecord, 0, len(records))
	deleted := 0
	for _, record := range records {
		if record.CaseID == caseID {
			deleted++
		} else {
			kept = append(kept, record)
		}
	}

	if err := r.writeLocked(kept, version); err != nil {
		return 0, err
	}
	return deleted, nil
}

func recordKey(caseID, documentID, chunkID string) string {
	return caseID + "\x00" + documentID + "\x00" + chunkID
}

func (r *EvidenceIndexRepository) recordFromChunk(chunk models.EvidenceChunk) (models.IndexRecord, error) {
	embedding, err := r.embed(chunk.Text, r.dims)
	if err != nil {
		return models.IndexRecord{}, fmt.Errorf("failed to embed chunk %s: %w", chunk.ChunkID, err)
	}
	return models.IndexRecord{EvidenceChunk: chunk, Embedding: embedding}, nil
}

// indexVersion captures the state of the index file at read time.
type indexVersion struct {
	mtime  time.Time
	exists bool
}

// loadLocked returns the current records, serving from the mtime-keyed
// cache when the file has not changed. Caller must hold r.mu.
func (r *EvidenceIndexRepository) loadLocked() ([]models.IndexRecord, indexVersion, error) {
	info, statErr := os.Stat(r.indexFile)
	if os.IsNotExist(statErr) {
		version := indexVersion{exists: false}
		r.cacheLocked(nil, version)
		return nil, version, nil
	}
	if statErr != nil {
		return nil, indexVersion{}, fmt.Errorf("failed to stat evidence index: %w", statErr)
	}

	version := indexVersion{mtime: info.ModTime(), exists: true}
	if r.cachedValid && r.cachedExists && r.cachedMtime.Equal(version.mtime) {
		return r.cached, version, nil
	}

	data, err := os.ReadFile(r.indexFile)
	if err != nil {
		return nil, indexVersion{}, fmt.Errorf("failed to read evidence index: %w", err)
	}

	var records []models.IndexRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, indexVersion{}, models.WrapCorrupt("evidence index "+r.indexFile, err)
	}

	r.cacheLocked(records, version)
	return records, version, nil
}

// writeLocked sorts and rewrites the whole index, failing with
// ErrWriteConflict if the file changed since expected was read.
// Caller must hold r.mu.
func (r *EvidenceIndexRepository) writeLocked(records []models.IndexRecord, expected indexVersion) error {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CaseID != records[j].CaseID {
			return records[i].CaseID < records[j].CaseID
		}
		if records[i].DocumentID != records[j].DocumentID {
			return records[i].DocumentID < records[j].DocumentID
		}
		return records[i].ChunkID < records[j].ChunkID
	})

	if records == nil {
		records = []models.IndexRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode evidence index: %w", err)
	}

	current := indexVersion{exists: false}
	if info, statErr := os.Stat(r.indexFile); statErr == nil {
		current = indexVersion{mtime: info.ModTime(), exists: true}
	}
	if current.exists != expected.exists || (current.exists && !current.mtime.Equal(expected.mtime)) {
		r.cachedValid = false
		return fmt.Errorf("%w: %s changed since read", models.ErrWriteConflict, r.indexFile)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.indexFile), ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write evidence index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, r.indexFile); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace evidence index: %w", err)
	}

	version := indexVersion{exists: true}
	if info, statErr := os.Stat(r.indexFile); statErr == nil {
		version.mtime = info.ModTime()
	}
	r.cacheLocked(records, version)
	return nil
}

func (r *EvidenceIndexRepository) cacheLocked(records []models.IndexRecord, version indexVersion) {
	r.cached = records
	r.cachedMtime = version.mtime
	r.cachedExists = version.exists
	r.cachedValid = true
}
