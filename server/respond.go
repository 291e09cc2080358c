package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	sponsorgate "github.com/x402-foundation/sponsorgate"
)

// respondError writes a ProxyError as the response body: the error message
// under "error", its machine-readable code under "code", and any details
// (e.g. the raw upstream challenge on 402 outcomes) merged in alongside.
func respondError(c *gin.Context, status int, perr *sponsorgate.ProxyError) {
	body := gin.H{
		"error": perr.Message,
		"code":  perr.Code,
	}
	for k, v := range perr.Details {
		body[k] = v
	}
	c.JSON(status, body)
}

// respondFailed writes a validation-failure body in the {status, reason}
// shape, tagged with the error code.
func respondFailed(c *gin.Context, status int, code, reason string) {
	c.JSON(status, gin.H{
		"status": "failed",
		"reason": reason,
		"code":   code,
	})
}

// serverError is the catch-all for unexpected internal failures.
func serverError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
