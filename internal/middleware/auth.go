package middleware

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/requestdata"
	"github.com/yungbote/docscan-backend/internal/services"
)

const tokenCookie = "token"

type AuthMiddleware struct {
	log          *logger.Logger
	authService  services.AuthService
	secureCookie bool
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		log:          log.With("middleware", "AuthMiddleware"),
		authService:  authService,
		secureCookie: os.Getenv("COOKIE_SECURE") == "true",
	}
}

// Identify resolves the caller's identity from the token cookie, creating an
// anonymous user (and setting a fresh cookie) when there is none. Requests
// only fail here when the identity store itself is down.
func (am *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)

		user, fresh, err := am.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			am.log.Error("Identity resolution failed", "error", err.Error())
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity unavailable"})
			return
		}
		if fresh != "" {
			maxAge := int(am.authService.TokenTTL().Seconds())
			c.SetCookie(tokenCookie, fresh, maxAge, "/", "", am.secureCookie, true)
			token = fresh
		}

		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			TokenString: token,
			UserID:      user.ID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// extractToken prefers the cookie; a query parameter is accepted for
// EventSource clients that cannot attach cookies cross-origin.
func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}
