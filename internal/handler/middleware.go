package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"illustrator-server/internal/authutils"
)

const contextUserIDKey = "user_id"

// AuthMiddleware проверяет bearer-токен и кладет user_id в контекст запроса.
func AuthMiddleware(verifier *authutils.JWTVerifier, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("auth_middleware")
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header missing"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
			return
		}

		claims, err := verifier.VerifyToken(parts[1])
		if err != nil {
			log.Debug("Token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(contextUserIDKey, claims.UserID)
		c.Next()
	}
}

// userIDFromContext извлекает user_id, положенный middleware.
func userIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get(contextUserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := raw.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
