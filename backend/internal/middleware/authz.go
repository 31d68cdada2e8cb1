package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"simpletasks/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const (
	ContextUserID      = "user_id"
	ContextAccessToken = "access_token"
)

// Authenticator resolves a bearer token to the id of the user it was issued
// to. It returns services.ErrInvalidToken for unknown, expired or revoked
// tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

type AuthzConfig struct {
	Authenticator Authenticator
}

func unauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
}

// AuthzMiddleware rejects requests without a valid bearer token and stores
// the caller's id under ContextUserID.
func AuthzMiddleware(config AuthzConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthenticated(c)
			return
		}

		userID, err := config.Authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrInvalidToken) {
				unauthenticated(c)
				return
			}
			log.Printf("❌ Failed to authenticate request: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextAccessToken, token)
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUserID returns the authenticated user for the request, or false on
// routes that did not run AuthzMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := v.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}

func AccessToken(c *gin.Context) string {
	return c.GetString(ContextAccessToken)
}
