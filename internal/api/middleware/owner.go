package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"ai-subtitler/internal/api/errors"
)

// OwnerHeader carries the authenticated user id set by the identity proxy
// in front of this service.
const OwnerHeader = "X-User-ID"

const ownerKey = "owner_id"

// RequireOwner rejects requests without an authenticated owner.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" || strings.ContainsAny(owner, `/\`) {
			HandleError(c, errors.NewUnauthorizedError("Unauthorized"))
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// OwnerID returns the owner set by RequireOwner.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
