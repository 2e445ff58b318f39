// File: internal/middleware/auth.go
package middleware

import (
	"identity_backend/internal/auth"
	"identity_backend/internal/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireAccess creates a Gin middleware enforcing the access gate for each
// request: token presence, decodability, signed expiry, role, and email
// verification, in that order. The denial reason decides the response so
// clients can branch between re-login and re-verification.
func RequireAccess(gate *auth.Gate, logger *zap.Logger, requiredRole string, requireVerifiedEmail bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := common.GetTokenFromContext(c)

		decision, claims := gate.CheckAccess(tokenString, requiredRole, requireVerifiedEmail)
		if !decision.OK {
			logger.Debug("Access denied",
				zap.String("reason", decision.Reason),
				zap.String("path", c.Request.URL.Path),
			)
			common.RespondWithError(c, accessError(decision.Reason))
			return
		}

		c.Set(common.UserIDKey, claims.UserID)
		c.Set(common.UserEmailKey, claims.Email)
		if len(claims.Role) > 0 {
			c.Set(common.UserRoleKey, claims.Role[0])
		}
		c.Set(common.UserClaimsKey, claims)

		c.Next()
	}
}

func accessError(reason string) *common.APIError {
	switch reason {
	case auth.ReasonInsufficientRole, auth.ReasonEmailNotVerified:
		return common.ErrForbidden.WithDetails(reason)
	default:
		return common.ErrUnauthorized.WithDetails(reason)
	}
}
