package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

func TestEvidenceEndpoints_IndexSearchStatsDelete(t *testing.T) {
	r, _, _ := newTestRouter(t)

	indexBody := map[string]interface{}{
		"case_id": "case-1",
		"documents": []map[string]interface{}{
			{"document_id": "paystub", "text": "monthly income verification paystub employer statement", "source": "paystub.txt"},
			{"document_id": "appraisal", "text": "property appraisal valuation report", "source": "appraisal.txt"},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/api/evidence/index", indexBody, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	search := doJSON(t, r, http.MethodPost, "/api/evidence/search", map[string]interface{}{
		"case_id": "case-1",
		"query":   "income verification",
		"top_k":   5,
	}, nil)
	if search.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", search.Code, search.Body.String())
	}

	var searchEnv struct {
		Data struct {
			Results []struct {
				Chunk struct {
					DocumentID string `json:"document_id"`
				} `json:"chunk"`
				Score float64 `json:"score"`
			} `json:"results"`
		} `json:"data"`
	}
	if err := json.Unmarshal(search.Body.Bytes(), &searchEnv); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(searchEnv.Data.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(searchEnv.Data.Results))
	}
	if searchEnv.Data.Results[0].Chunk.DocumentID != "paystub" {
		t.Errorf("expected paystub first, got %s", searchEnv.Data.Results[0].Chunk.DocumentID)
	}

	stats := doJSON(t, r, http.MethodGet, "/api/cases/case-1/evidence/stats", nil, nil)
	if stats.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", stats.Code)
	}
	var statsEnv struct {
		Data struct {
			NumChunks int `json:"num_chunks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(stats.Body.Bytes(), &statsEnv); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if statsEnv.Data.NumChunks != 2 {
		t.Errorf("expected 2 chunks, got %d", statsEnv.Data.NumChunks)
	}

	deleted := doJSON(t, r, http.MethodDelete, "/api/cases/case-1/evidence", nil, nil)
	if deleted.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", deleted.Code)
	}

	statsAfter := doJSON(t, r, http.MethodGet, "/api/cases/case-1/evidence/stats", nil, nil)
	if err := json.Unmarshal(statsAfter.Body.Bytes(), &statsEnv); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if statsEnv.Data.NumChunks != 0 {
		t.Errorf("expected empty case after delete, got %d chunks", statsEnv.Data.NumChunks)
	}
}

func TestIndexEndpoint_DefaultOverlapWithCustomChunkSize(t *testing.T) {
	r, index, _ := newTestRouter(t)

	// 1400 chars with chunk_size 700 and the default overlap of 100 gives
	// windows [0,700), [600,1300), [1200,1400). Overlap falling back to 0
	// would produce only two.
	w := doJSON(t, r, http.MethodPost, "/api/evidence/index", map[string]interface{}{
		"case_id": "case-1",
		"documents": []map[string]interface{}{
			{"document_id": "long-doc", "text": strings.Repeat("a", 1400)},
		},
		"chunk_size": 700,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stats, err := index.CaseStats("case-1")
	if err != nil {
		t.Fatalf("CaseStats: %v", err)
	}
	if stats.NumChunks != 3 {
		t.Errorf("expected 3 overlapping chunks, got %d", stats.NumChunks)
	}
}

func TestIndexEndpoint_SmallChunkSizeDropsDefaultOverlap(t *testing.T) {
	r, index, _ := newTestRouter(t)

	// A chunk_size below the default overlap must not fail validation; the
	// defaulted overlap collapses to 0 instead.
	w := doJSON(t, r, http.MethodPost, "/api/evidence/index", map[string]interface{}{
		"case_id": "case-1",
		"documents": []map[string]interface{}{
			{"document_id": "small", "text": strings.Repeat("b", 100)},
		},
		"chunk_size": 50,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("index: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	stats, err := index.CaseStats("case-1")
	if err != nil {
		t.Fatalf("CaseStats: %v", err)
	}
	if stats.NumChunks != 2 {
		t.Errorf("expected 2 non-overlapping chunks, got %d", stats.NumChunks)
	}
}

func TestIndexEndpoint_RejectsExplicitInvalidOverlap(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/evidence/index", map[string]interface{}{
		"case_id": "case-1",
		"documents": []map[string]interface{}{
			{"document_id": "doc", "text": "some text"},
		},
		"chunk_size": 50,
		"overlap":    60,
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for overlap >= chunk_size, got %d", w.Code)
	}
}

func TestSearchEndpoint_InvalidTopK(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/evidence/search", map[string]interface{}{
		"case_id": "case-1",
		"query":   "anything",
		"top_k":   -1,
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative top_k, got %d", w.Code)
	}
}

func TestUploadDocumentEndpoint(t *testing.T) {
	r, index, _ := newTestRouter(t)

	body, contentType := multipartUpload(t,
		map[string]string{"case_id": "case-9", "document_id": "letter"},
		"letter.txt", "text/plain",
		[]byte("employment verification letter confirming borrower income and tenure"))

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Data struct {
			SHA256        string `json:"sha256"`
			ChunksIndexed int    `json:"chunks_indexed"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.SHA256 == "" {
		t.Error("expected content checksum in response")
	}
	if envelope.Data.ChunksIndexed == 0 {
		t.Error("expected indexed chunks")
	}

	stats, err := index.CaseStats("case-9")
	if err != nil {
		t.Fatalf("CaseStats: %v", err)
	}
	if stats.NumChunks != envelope.Data.ChunksIndexed {
		t.Errorf("index stats %d do not match reported chunks %d", stats.NumChunks, envelope.Data.ChunksIndexed)
	}
}

func TestUploadDocumentEndpoint_RejectsNonText(t *testing.T) {
	r, _, _ := newTestRouter(t)

	body, contentType := multipartUpload(t,
		map[string]string{"case_id": "case-9", "document_id": "scan"},
		"scan.pdf", "application/pdf",
		[]byte("%PDF-1.4 fake"))

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unsupported content type, got %d", w.Code)
	}
}

func TestUploadDocumentEndpoint_RejectsInvalidUTF8(t *testing.T) {
	r, _, _ := newTestRouter(t)

	body, contentType := multipartUpload(t,
		map[string]string{"case_id": "case-9", "document_id": "binary"},
		"binary.txt", "text/plain",
		[]byte{0xff, 0xfe, 0x00, 0x41})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid UTF-8, got %d", w.Code)
	}
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	r := gin.New()
	r.Use(APIKeyAuth(string(hash)))
	r.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name     string
		key      string
		wantCode int
	}{
		{"valid key", "secret-key", http.StatusOK},
		{"wrong key", "other-key", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.wantCode {
				t.Errorf("expected %d, got %d", tc.wantCode, w.Code)
			}
		})
	}
}

func TestAPIKeyAuthMiddleware_DisabledWithoutHash(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(APIKeyAuth(""))
	r.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected open access without configured hash, got %d", w.Code)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, contentType string, contents []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}

	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	header["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(contents); err != nil {
		t.Fatalf("part write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer close: %v", err)
	}
	return &buf, writer.FormDataContentType()
}
