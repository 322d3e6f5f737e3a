package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"caseflow-backend/models"
)

// ExtractorVersion identifies the text extraction strategy recorded in
// provenance metadata.
const ExtractorVersion = "plaintext_v1"

// ExtractedDocument is the result of text extraction from an uploaded file.
type ExtractedDocument struct {
	Text   string
	SHA256 string
	Meta   map[string]interface{}
}

// ExtractText converts an uploaded document into indexable text. Only plain
// text is supported; the content must be valid UTF-8 with no replacement or
// lossy decoding.
func ExtractText(data []byte, contentType string) (*ExtractedDocument, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if mediaType != "text/plain" {
		return nil, fmt.Errorf("%w: unsupported content type '%s'", models.ErrInvalidArgument, contentType)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: document is not valid UTF-8", models.ErrInvalidArgument)
	}

	text := string(data)
	digest := sha256.Sum256(data)
	checksum := hex.EncodeToString(digest[:])

	return &ExtractedDocument{
		Text:   text,
		SHA256: checksum,
		Meta: map[string]interface{}{
			"extractor":    ExtractorVersion,
			"content_type": mediaType,
			"num_bytes":    len(data),
			"num_chars":    utf8.RuneCountInString(text),
		},
	}, nil
}
