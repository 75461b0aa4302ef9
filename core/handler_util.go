package core

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondServiceError maps a structured core error to the unified payload,
// rendering its message key through the catalog. Unknown errors become a
// generic 500 so internals never leak to the client.
func respondServiceError(c *gin.Context, catalog *MessageCatalog, err error) {
	var e *Error
	if errors.As(err, &e) {
		respondError(c, httpStatusFor(e.Kind), string(e.Kind), catalog.Lookup(e.MessageKey))
		return
	}
	respondError(c, 500, "INTERNAL_SERVER_ERROR", catalog.Lookup("error.internal"))
}
