package handlers

import (
	"io"
	"net/http"
	"strconv"

	"caseflow-backend/models"
	"caseflow-backend/repository"
	"caseflow-backend/service"

	"github.com/gin-gonic/gin"
)

// EvidenceHandler handles HTTP requests for evidence indexing and retrieval
type EvidenceHandler struct {
	index          *repository.EvidenceIndexRepository
	provenanceRepo *repository.ProvenanceRepository
	maxUploadSize  int64
}

// NewEvidenceHandler creates a new evidence handler
func NewEvidenceHandler(index *repository.EvidenceIndexRepository, provenanceRepo *repository.ProvenanceRepository) *EvidenceHandler {
	return &EvidenceHandler{
		index:          index,
		provenanceRepo: provenanceRepo,
		maxUploadSize:  10 * 1024 * 1024, // 10MB
	}
}

// IndexDocument is one document in an indexing request
type IndexDocument struct {
	DocumentID string `json:"document_id" binding:"required"`
	Text       string `json:"text" binding:"required"`
	Source     string `json:"source"`
}

// IndexDocumentsRequest represents the request body for indexing documents
type IndexDocumentsRequest struct {
	CaseID    string          `json:"case_id" binding:"required"`
	Documents []IndexDocument `json:"documents" binding:"required"`
	ChunkSize int             `json:"chunk_size"`
	Overlap   int             `json:"overlap"`
}

func (h *EvidenceHandler) chunkDocuments(req IndexDocumentsRequest) ([]models.EvidenceChunk, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = service.DefaultChunkSize
	}
	overlap := req.Overlap
	if overlap <= 0 {
		overlap = service.DefaultOverlap
		if overlap >= chunkSize {
			overlap = 0
		}
	}

	var chunks []models.EvidenceChunk
	for _, doc := range req.Documents {
		docChunks, err := service.ChunkText(req.CaseID, doc.DocumentID, doc.Text, doc.Source, chunkSize, overlap)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, docChunks...)
	}
	return chunks, nil
}

// IndexDocuments handles POST /api/evidence/index
func (h *EvidenceHandler) IndexDocuments(c *gin.Context) {
	var req IndexDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	chunks, err := h.chunkDocuments(req)
	if err != nil {
		respondError(c, err)
		return
	}

	indexed, err := h.index.AddDocuments(chunks)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case_id":        req.CaseID,
			"chunks_indexed": indexed,
		},
	})
}

// ReindexCase handles POST /api/evidence/reindex
func (h *EvidenceHandler) ReindexCase(c *gin.Context) {
	var req IndexDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	chunks, err := h.chunkDocuments(req)
	if err != nil {
		respondError(c, err)
		return
	}

	indexed, err := h.index.OverwriteCase(req.CaseID, chunks)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case_id":        req.CaseID,
			"chunks_indexed": indexed,
		},
	})
}

// SearchRequest represents the request body for an evidence search
type SearchRequest struct {
	CaseID   string   `json:"case_id" binding:"required"`
	Query    string   `json:"query" binding:"required"`
	TopK     int      `json:"top_k"`
	MinScore *float64 `json:"min_score"`
}

// Search handles POST /api/evidence/search
func (h *EvidenceHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = 5
	}

	results, err := h.index.Search(req.Query, topK, req.CaseID, req.MinScore)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case_id": req.CaseID,
			"results": results,
		},
	})
}

// GetCaseStats handles GET /api/cases/:case_id/evidence/stats
func (h *EvidenceHandler) GetCaseStats(c *gin.Context) {
	stats, err := h.index.CaseStats(c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// DeleteCase handles DELETE /api/cases/:case_id/evidence
func (h *EvidenceHandler) DeleteCase(c *gin.Context) {
	removed, err := h.index.DeleteCase(c.Param("case_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case_id":        c.Param("case_id"),
			"chunks_removed": removed,
		},
	})
}

// UploadDocument handles POST /api/documents/upload. It extracts text from
// an uploaded plain-text file, records provenance, and indexes the chunks
// for the case.
func (h *EvidenceHandler) UploadDocument(c *gin.Context) {
	caseID := c.PostForm("case_id")
	documentID := c.PostForm("document_id")
	if caseID == "" || documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "case_id and document_id form fields are required",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "File is required",
			},
		})
		return
	}

	if fileHeader.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FILE_TOO_LARGE",
				"message": "File size exceeds maximum of " + strconv.FormatInt(h.maxUploadSize, 10) + " bytes",
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	extracted, err := service.ExtractText(data, contentType)
	if err != nil {
		respondError(c, err)
		return
	}

	event := &models.ProvenanceEvent{
		CaseID:         caseID,
		DocumentID:     documentID,
		Filename:       fileHeader.Filename,
		ContentType:    contentType,
		SHA256:         extracted.SHA256,
		ExtractionMeta: extracted.Meta,
	}
	if err := h.provenanceRepo.SaveDocument(c.Request.Context(), event, extracted.Text); err != nil {
		respondError(c, err)
		return
	}

	chunks, err := service.ChunkText(caseID, documentID, extracted.Text, fileHeader.Filename,
		service.DefaultChunkSize, service.DefaultOverlap)
	if err != nil {
		respondError(c, err)
		return
	}

	indexed, err := h.index.AddDocuments(chunks)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"case_id":        caseID,
			"document_id":    documentID,
			"sha256":         extracted.SHA256,
			"chunks_indexed": indexed,
		},
	})
}
