package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/docscan-backend/internal/clients/gcp"
	"github.com/yungbote/docscan-backend/internal/clients/openai"
	"github.com/yungbote/docscan-backend/internal/clients/pinecone"
	"github.com/yungbote/docscan-backend/internal/clients/redis"
	"github.com/yungbote/docscan-backend/internal/db"
	"github.com/yungbote/docscan-backend/internal/handlers"
	"github.com/yungbote/docscan-backend/internal/middleware"
	"github.com/yungbote/docscan-backend/internal/pkg/envutil"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
	"github.com/yungbote/docscan-backend/internal/server"
	"github.com/yungbote/docscan-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	log.Info("Setting up Postgres from main...")
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Redis
	log.Info("Setting up Redis from main...")
	redisService, err := redis.NewService(log)
	if err != nil {
		log.Error("Redis init failed", "error", err)
		os.Exit(1)
	}
	if err := redisService.Connect(context.Background()); err != nil {
		log.Error("Redis connect failed", "error", err)
		os.Exit(1)
	}
	defer redisService.Close()

	relay, err := redis.NewStreamRelay(log, redisService)
	if err != nil {
		log.Error("Could not init StreamRelay", "error", err)
		os.Exit(1)
	}
	registry, err := redis.NewJobRegistry(log, redisService)
	if err != nil {
		log.Error("Could not init JobRegistry", "error", err)
		os.Exit(1)
	}
	linkCache, err := redis.NewLinkCache(log, redisService)
	if err != nil {
		log.Error("Could not init LinkCache", "error", err)
		os.Exit(1)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	chatRepo := repos.NewChatRepo(thePG, log)
	messageRepo := repos.NewMessageRepo(thePG, log)
	docOriginRepo := repos.NewDocOriginRepo(thePG, log)
	docVersionRepo := repos.NewDocVersionRepo(thePG, log)

	// Clients
	log.Info("Setting up Clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAIClient", "error", err)
		os.Exit(1)
	}
	bucketClient, err := gcp.NewBucketClient(context.Background(), log, linkCache)
	if err != nil {
		log.Error("Could not init BucketClient", "error", err)
		os.Exit(1)
	}
	defer bucketClient.Close()

	// Search is optional; without Pinecone credentials the rest still runs.
	var vectorStore pinecone.VectorStore
	if os.Getenv("PINECONE_API_KEY") != "" {
		pineconeClient, err := pinecone.NewFromEnv(log)
		if err != nil {
			log.Error("Could not init PineconeClient", "error", err)
			os.Exit(1)
		}
		vectorStore, err = pinecone.NewVectorStore(log, pineconeClient)
		if err != nil {
			log.Error("Could not init VectorStore", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("PINECONE_API_KEY not set, document search disabled")
	}

	// Services
	log.Info("Setting up Services from main...")
	var indexerService services.Indexer
	if vectorStore != nil {
		indexerService, err = services.NewIndexer(log, openaiClient, vectorStore)
		if err != nil {
			log.Error("Could not init Indexer", "error", err)
			os.Exit(1)
		}
	}
	generationService, err := services.NewGenerationService(log, thePG, docVersionRepo, docOriginRepo, chatRepo, relay, registry, openaiClient, bucketClient, indexerService)
	if err != nil {
		log.Error("Could not init GenerationService", "error", err)
		os.Exit(1)
	}
	dispatcherService, err := services.NewDispatcherService(log, chatRepo, messageRepo, docVersionRepo, docOriginRepo, openaiClient, generationService)
	if err != nil {
		log.Error("Could not init DispatcherService", "error", err)
		os.Exit(1)
	}
	chatService, err := services.NewChatService(log, thePG, chatRepo, docVersionRepo, docOriginRepo, bucketClient, generationService)
	if err != nil {
		log.Error("Could not init ChatService", "error", err)
		os.Exit(1)
	}
	docService, err := services.NewDocService(log, docVersionRepo, docOriginRepo, chatRepo, openaiClient, vectorStore, indexerService)
	if err != nil {
		log.Error("Could not init DocService", "error", err)
		os.Exit(1)
	}
	streamService, err := services.NewStreamService(log, docVersionRepo, chatRepo, relay, registry)
	if err != nil {
		log.Error("Could not init StreamService", "error", err)
		os.Exit(1)
	}
	authService, err := services.NewAuthService(log, userRepo)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up Handlers from main...")
	chatHandler := handlers.NewChatHandler(log, chatService, dispatcherService, streamService)
	docHandler := handlers.NewDocHandler(log, docService, chatService)

	// Middleware
	log.Info("Setting up Middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up Router from main...")
	router := server.NewRouter(server.RouterConfig{
		ChatHandler:    chatHandler,
		DocHandler:     docHandler,
		AuthMiddleware: authMiddleware,
	})

	port := envutil.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
