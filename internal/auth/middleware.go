package auth

import (
	"errors"
	"net/http"
	"strings"

	"skibook/internal/api"

	"github.com/gin-gonic/gin"
)

const (
	ctxClientID = "client_id"
	ctxPhone    = "client_phone"
	ctxRole     = "client_role"
)

// AuthMiddleware requires a valid access token in the Authorization header
// and stores the caller's id, phone and role on the context.
func AuthMiddleware(accessTokenSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, msg := bearerToken(c.GetHeader("Authorization"))
		if msg != "" {
			abort(c, http.StatusUnauthorized, msg)
			return
		}

		claims, err := ValidateAccessToken(token, accessTokenSecret)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				abort(c, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, ErrInvalidTokenType):
				abort(c, http.StatusUnauthorized, "Access token required")
			default:
				abort(c, http.StatusUnauthorized, "Invalid or malformed token")
			}
			return
		}

		c.Set(ctxClientID, claims.ClientID)
		c.Set(ctxPhone, claims.Phone)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "Invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "Token is empty"
	}
	return token, ""
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: msg})
}

// RequireRole lets only callers with the given role through. It must run
// after AuthMiddleware.
func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ctxRole)
		if !exists {
			abort(c, http.StatusUnauthorized, "Client role not found")
			return
		}
		roleStr, ok := role.(string)
		if !ok {
			abort(c, http.StatusUnauthorized, "Invalid role type")
			return
		}
		if roleStr != requiredRole {
			abort(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

func GetClientID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ctxClientID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// IsAdmin reports whether the authenticated caller carries the admin role.
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ctxRole) == RoleAdmin
}
