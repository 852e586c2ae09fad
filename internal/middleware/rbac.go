package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/response"
)

// RequireRole checks that the caller holds one of the given roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, deniedCode(roles))
	}
}

// RequireStudent admits students only.
func RequireStudent() gin.HandlerFunc {
	return RequireRole(model.RoleStudent)
}

// RequireStaff admits collaborators and admins.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(model.RoleCollaborator, model.RoleAdmin)
}

func deniedCode(roles []model.Role) response.ErrCode {
	if len(roles) == 1 && roles[0] == model.RoleStudent {
		return response.ErrStudentAccessOnly
	}
	staff := len(roles) > 0
	for _, r := range roles {
		if !r.IsStaff() {
			staff = false
		}
	}
	if staff {
		return response.ErrStaffAccessOnly
	}
	return response.ErrForbidden
}
