package middleware

import (
	"net/http"
	"strings"

	"github.com/careerforge/careerforge/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	RoleStudent = "student"
	RoleAlumni  = "alumni"
	RoleAdmin   = "admin"
)

func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := map[string]struct{}{}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		role := c.GetString("role")
		if _, ok := allow[role]; role == "" || !ok {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// RequireStaff admits admins and alumni, who may schedule interviews for students.
func RequireStaff() gin.HandlerFunc { return RequireRole(RoleAdmin, RoleAlumni) }
