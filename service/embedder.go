package service

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"

	"caseflow-backend/models"
)

// DefaultEmbeddingDims is the fixed output dimension of the feature-hashing
// embedding.
const DefaultEmbeddingDims = 128

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// EmbedText produces a deterministic bag-of-tokens hashing embedding.
// Each lowercase alphanumeric token's sha256 digest picks a bucket and a
// +/-1 sign; the accumulated vector is L2-normalized. This is a
// feature-hashing embedding, not a learned one: determinism and
// reproducibility are the design goals, not semantic accuracy.
func EmbedText(text string, dims int) ([]float64, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dims must be > 0", models.ErrInvalidConfiguration)
	}

	vector := make([]float64, dims)
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		digest := sha256.Sum256([]byte(token))
		index := int(binary.BigEndian.Uint32(digest[:4])) % dims
		sign := 1.0
		if digest[4]%2 != 0 {
			sign = -1.0
		}
		vector[index] += sign
	}

	return normalize(vector), nil
}

// CosineSimilarity is a plain dot product of two equal-length,
// pre-normalized vectors.
func CosineSimilarity(left, right []float64) (float64, error) {
	if len(left) != len(right) {
		return 0, fmt.Errorf("%w: %d != %d", models.ErrDimensionMismatch, len(left), len(right))
	}

	var sum float64
	for i := range left {
		sum += left[i] * right[i]
	}
	return sum, nil
}

// normalize scales a vector to unit length. A zero vector stays zero.
func normalize(vector []float64) []float64 {
	var magnitude float64
	for _, value := range vector {
		magnitude += value * value
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude == 0 {
		return vector
	}

	for i := range vector {
		vector[i] /= magnitude
	}
	return vector
}
