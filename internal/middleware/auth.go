package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackcrew/hackathon-platform/internal/apperrors"
	"github.com/hackcrew/hackathon-platform/internal/models"
	"github.com/hackcrew/hackathon-platform/internal/services"
)

const claimsKey = "authClaims"

// abort writes the same {error, code, kind} body the handlers use.
func abort(c *gin.Context, ce *apperrors.Error) {
	c.AbortWithStatusJSON(apperrors.HTTPStatus(ce), gin.H{
		"error": ce.Message,
		"code":  ce.Code,
		"kind":  ce.Kind,
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware admits requests carrying a valid bearer token and stores
// its claims on the context.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, apperrors.Business(apperrors.CodeUnauthorized, "authorization header required"))
			return
		}
		token, ok := bearerToken(header)
		if !ok {
			abort(c, apperrors.Business(apperrors.CodeUnauthorized, "authorization must use the Bearer scheme"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			abort(c, apperrors.Business(apperrors.CodeUnauthorized, msg))
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects authenticated callers outside roles.
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRole(c)
		if !ok {
			abort(c, apperrors.Business(apperrors.CodeUnauthorized, "authentication required"))
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		abort(c, apperrors.Business(apperrors.CodeForbidden, "role "+string(role)+" may not call this endpoint"))
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

func claims(c *gin.Context) (*services.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*services.Claims)
	return cl, ok && cl != nil
}

// GetUserID returns the authenticated user's id.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	cl, ok := claims(c)
	if !ok {
		return uuid.Nil, false
	}
	return cl.UserID, true
}

// GetUserRole returns the authenticated user's role.
func GetUserRole(c *gin.Context) (models.UserRole, bool) {
	cl, ok := claims(c)
	if !ok {
		return "", false
	}
	return cl.Role, true
}
