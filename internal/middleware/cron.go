package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// RequireCronSecret authenticates the sweep endpoints. The bearer token is
// checked against a bcrypt hash when one is configured, otherwise against the
// plain secret. With neither configured every request is refused.
func RequireCronSecret(secret, secretHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !cronSecretMatches(token, secret, secretHash) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrCronSecretInvalid)
			return
		}
		c.Next()
	}
}

func cronSecretMatches(token, secret, secretHash string) bool {
	if secretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(token)) == nil
	}
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
