package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/docscan-backend/internal/handlers"
	"github.com/yungbote/docscan-backend/internal/middleware"
)

type RouterConfig struct {
	ChatHandler    *handlers.ChatHandler
	DocHandler     *handlers.DocHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Identified ||
	// ===============
	identified := router.Group("/")
	identified.Use(cfg.AuthMiddleware.Identify())
	// Chat
	identified.POST("/chat/new", cfg.ChatHandler.New)
	identified.GET("/chat/streaming/:doc_version_id", cfg.ChatHandler.Streaming)
	identified.POST("/chat/message", cfg.ChatHandler.Message)
	identified.GET("/chat/list", cfg.ChatHandler.List)
	identified.GET("/chat/:chat_id", cfg.ChatHandler.Get)
	// Doc
	identified.POST("/doc/search", cfg.DocHandler.Search)
	identified.POST("/doc/save", cfg.DocHandler.Save)
	identified.POST("/doc/chat_from_search", cfg.DocHandler.ChatFromSearch)
	identified.GET("/doc/:doc_id", cfg.DocHandler.GetOrigin)

	return router
}

func allowedOrigins() []string {
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); raw != "" {
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{
		"http://localhost:80",
		"http://localhost:3000",
		"http://localhost:5173",
	}
}
