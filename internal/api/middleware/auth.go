package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/models"
	"github.com/denisAlshanov/mediarelay/internal/services/auth"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// StreamHeadersKey holds the origin headers carried by a stream ticket.
const StreamHeadersKey = "stream_headers"

// AuthMiddleware requires the shared secret via X-API-Key, a bearer token or
// the token query parameter.
func AuthMiddleware(cfg *config.APIConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hasSharedSecret(c, cfg.SharedSecret) {
			c.Set("auth_method", "shared_secret")
			c.Next()
			return
		}

		// No valid authentication found
		appErr := utils.NewUnauthorizedError()
		c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorDetailResponse{Detail: appErr.Message})
	}
}

// StreamAuthMiddleware additionally accepts a stream ticket whose target
// claim equals the target query parameter. Failures are answered in plain
// text like the rest of the stream endpoint.
func StreamAuthMiddleware(cfg *config.APIConfig, tickets *auth.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hasSharedSecret(c, cfg.SharedSecret) {
			c.Set("auth_method", "shared_secret")
			c.Next()
			return
		}

		if token := c.Query("token"); token != "" && tickets != nil {
			claims, err := tickets.Validate(token, c.Query("target"))
			if err == nil {
				c.Set("auth_method", "ticket")
				c.Set("ticket_id", claims.ID)
				if len(claims.Headers) > 0 {
					c.Set(StreamHeadersKey, claims.Headers)
				}
				c.Next()
				return
			}
			utils.LogWarn(c.Request.Context(), "Rejected stream ticket", utils.Fields{"error": err.Error()})
		}

		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.AbortWithStatus(http.StatusUnauthorized)
		c.Writer.WriteString("unauthorized")
	}
}

func hasSharedSecret(c *gin.Context, secret string) bool {
	if secret == "" {
		return false
	}
	for _, candidate := range []string{c.GetHeader("X-API-Key"), extractToken(c), c.Query("token")} {
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if bearerToken == "" {
		return ""
	}

	// Remove "Bearer " prefix
	if len(bearerToken) > 7 && strings.ToLower(bearerToken[:7]) == "bearer " {
		return bearerToken[7:]
	}

	return bearerToken
}
