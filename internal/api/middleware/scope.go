package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	apperrors "github.com/sri0013/vnf-project/internal/pkg/errors"
)

// Token scopes.
const (
	ScopeAdmin      = "admin"
	ScopeSFCWrite   = "sfc:write"
	ScopeVNFWrite   = "vnf:write"
	ScopeFlowsWrite = "flows:write"
)

// AllScopes lists every scope a token can carry.
var AllScopes = []string{ScopeAdmin, ScopeSFCWrite, ScopeVNFWrite, ScopeFlowsWrite}

// RequireScope rejects callers whose token lacks scope. The admin scope
// satisfies every check. Must run after JWTAuth.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes := GetScopes(c.Request.Context())
		if scopes == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "no scopes in context",
			})
			return
		}

		if slices.Contains(scopes, ScopeAdmin) || slices.Contains(scopes, scope) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": apperrors.CodeForbidden, "message": "missing scope " + scope,
		})
	}
}
