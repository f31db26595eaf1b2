package configuration

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/cache"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/db"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/handler"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/hub"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/media"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/model"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/repo"
	"github.com/Bluerat1/UniClaim-v1.0.1-sub005/internal/service"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler  handler.ChatHandler
	AdminHandler handler.AdminHandler
	Hub          *hub.Hub
	Config       Config
	Logger       *zap.Logger

	// private - for cleanup
	mongoClient   *mongo.Database
	reconciler    *hub.Reconciler
	cancelCleanup context.CancelFunc
}

func BuildContainer() (*Container, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()

	cacheService := buildCache(config.Redis, logger)
	mediaStore := media.NewCloudinary(media.Config{
		CloudName: config.Cloudinary.CloudName,
		APIKey:    config.Cloudinary.APIKey,
		APISecret: config.Cloudinary.APISecret,
	}, logger)

	conversationRepo := repo.NewConversationRepository(
		db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection), logger)
	messageRepo := repo.NewMessageRepository(
		db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection), logger)
	postRepo := repo.NewPostRepository(
		db.NewRepository[model.Post](con, config.ChatDatabase.PostsCollection), logger)
	userRepo := repo.NewUserRepository(
		db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection), cacheService, logger)

	txn := db.TxnFor(con)
	wsHub := hub.NewHub()

	evidenceService := service.NewEvidenceService(mediaStore, logger)
	notifier := service.NewNotificationService(wsHub, userRepo, logger)
	integrityService := service.NewIntegrityService(conversationRepo, messageRepo, postRepo, logger)
	cleanupService := service.NewCleanupService(conversationRepo, messageRepo, integrityService, logger)
	requestService := service.NewRequestService(conversationRepo, messageRepo, postRepo, userRepo,
		evidenceService, notifier, cleanupService, txn, logger)
	chatService := service.NewChatService(conversationRepo, messageRepo, postRepo, userRepo,
		evidenceService, notifier, txn, logger)
	readTracker := service.NewReadTracker(conversationRepo, messageRepo, logger)
	profileService := service.NewProfileService(userRepo, conversationRepo, messageRepo, logger)

	reconciler := hub.NewReconciler(con, conversationRepo, 0, logger)
	reconciler.Start()

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	if config.Cleanup.Enabled {
		go runCleanupLoop(cleanupCtx, cleanupService, config.Cleanup, logger)
	}

	chatHandler := handler.NewChatHandler(chatService, requestService, readTracker, evidenceService, reconciler, wsHub)
	adminHandler := handler.NewAdminHandler(integrityService, cleanupService, profileService)

	return &Container{
		ChatHandler:   chatHandler,
		AdminHandler:  adminHandler,
		Hub:           wsHub,
		Config:        *config,
		Logger:        logger,
		mongoClient:   con,
		reconciler:    reconciler,
		cancelCleanup: cancelCleanup,
	}, nil
}

func buildCache(config RedisConfig, logger *zap.Logger) cache.Cache {
	if !config.Enabled {
		return cache.NewMemory()
	}
	redisCache, err := cache.NewRedis(config.Addr, config.Password, config.DB)
	if err != nil {
		logger.Warn("redis unreachable, falling back to in-memory cache", zap.Error(err))
		return cache.NewMemory()
	}
	return redisCache
}

func runCleanupLoop(ctx context.Context, cleanup service.CleanupService, config CleanupConfig, logger *zap.Logger) {
	interval := time.Duration(config.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := cleanup.RunPeriodicCleanup(ctx)
			logger.Info("periodic cleanup finished",
				zap.Int("ghosts_detected", result.GhostsDetected),
				zap.Int("ghosts_cleaned", result.GhostsCleaned),
				zap.Int("orphans_detected", result.OrphansDetected),
				zap.Int("orphans_cleaned", result.OrphansCleaned),
				zap.Int("errors", len(result.Errors)),
				zap.Duration("duration", result.Duration))
		}
	}
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	if c.cancelCleanup != nil {
		c.cancelCleanup()
	}

	if c.reconciler != nil {
		c.reconciler.Stop()
	}

	// Stop the hub (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
