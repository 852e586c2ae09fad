package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// AccountChecker reports whether an account may still use the API.
type AccountChecker interface {
	IsActive(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RequireActiveAccount rejects callers whose account was deactivated after
// the token was issued (for instance by the contract expiry sweep).
func RequireActiveAccount(accounts AccountChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		active, err := accounts.IsActive(c.Request.Context(), claims.UserID)
		if err != nil {
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
			return
		}
		if !active {
			response.AbortFail(c, http.StatusForbidden, response.ErrAccountInactive)
			return
		}

		c.Next()
	}
}
