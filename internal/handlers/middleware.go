package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const companyIDKey = "companyID"

// bcryptPrefix marks a configured key stored as a bcrypt hash rather than
// plaintext ("$2a$", "$2b$", ...). Hashed keys keep the shared secret out of
// the config file.
const bcryptPrefix = "$2"

// apiKeyMiddleware authenticates the application-scoped API key and stores
// the bound company id in the Gin context. Websocket clients may pass the key
// as a query parameter since browsers cannot set custom upgrade headers.
func (h *Handler) apiKeyMiddleware(c *gin.Context) {
	key := strings.TrimSpace(c.GetHeader("X-API-Key"))
	if key == "" {
		key = strings.TrimSpace(c.Query("api_key"))
	}
	if key == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing X-API-Key header",
		})
		return
	}

	companyID, ok := h.resolveAPIKey(key)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid API key",
		})
		return
	}

	c.Set(companyIDKey, companyID)
	c.Next()
}

// resolveAPIKey maps a presented key to its company. Plaintext entries match
// directly; bcrypt entries are compared hash-by-hash.
func (h *Handler) resolveAPIKey(key string) (string, bool) {
	if company, ok := h.apiKeys[key]; ok && !strings.HasPrefix(key, bcryptPrefix) {
		return company, true
	}
	for stored, company := range h.apiKeys {
		if !strings.HasPrefix(stored, bcryptPrefix) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(key)) == nil {
			return company, true
		}
	}
	return "", false
}

// companyID returns the authenticated company for this request.
func companyID(c *gin.Context) string {
	return c.GetString(companyIDKey)
}
