package handlers

import (
	"errors"
	"net/http"

	"caseflow-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// requestIDKey is the gin context key holding the request id.
const requestIDKey = "request_id"

// RequestID attaches a request id to every request, honoring an incoming
// X-Request-Id header and minting a fresh UUID otherwise. The id is echoed
// back in the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-Id", rid)
		c.Next()
	}
}

// requestID reads the request id set by the RequestID middleware.
func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// APIKeyAuth validates the X-API-Key header against a bcrypt hash of the
// expected key. An empty hash disables authentication, for local
// development only.
func APIKeyAuth(hashedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hashedKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" || bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid or missing API key",
				},
			})
			return
		}
		c.Next()
	}
}

// respondError maps domain errors onto HTTP responses in the standard
// envelope.
func respondError(c *gin.Context, err error) {
	var missing *models.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FIELDS",
				"message": missing.Error(),
				"fields":  missing.Fields,
			},
		})
	case errors.Is(err, models.ErrInvalidArgument), errors.Is(err, models.ErrInvalidConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": err.Error(),
			},
		})
	case errors.Is(err, models.ErrWriteConflict):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "WRITE_CONFLICT",
				"message": err.Error(),
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": err.Error(),
			},
		})
	}
}
