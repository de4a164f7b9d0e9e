package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inmohub/backend-go/internal/config"
	"github.com/inmohub/backend-go/internal/database"
	"github.com/inmohub/backend-go/internal/knowledge"
	"github.com/inmohub/backend-go/internal/logger"
	"github.com/inmohub/backend-go/internal/repository"
	"github.com/inmohub/backend-go/internal/services"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const jobName = "feedback-learning"

func main() {
	_ = godotenv.Load()

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetAppConfig()

	if err := logger.InitLogger(cfg.LogLevel); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.Open(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	// 跑批前先确认数据库可达，省得折算到一半失败
	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("Failed to unwrap sql.DB", zap.Error(err))
	}
	checker := database.NewHealthChecker(sqlDB, nil)
	if err := checker.CheckWithRetry(ctx); err != nil {
		zlog.Fatal("Database unhealthy, aborting batch", zap.Error(err))
	}

	redisClient, err := database.OpenRedis(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect redis", zap.Error(err))
	}
	lock := services.NewJobLock(redisClient, cfg.Jobs.LockTTL, zlog)
	release, ok, err := lock.Acquire(ctx, jobName)
	if err != nil {
		zlog.Fatal("Failed to acquire job lock", zap.Error(err))
	}
	if !ok {
		zlog.Info("Another instance holds the lock, exiting", zap.String("job", jobName))
		return
	}
	defer release()

	index, err := knowledge.NewVectorIndex(cfg.VectorStore)
	if err != nil {
		zlog.Fatal("Failed to connect vector store", zap.Error(err))
	}
	embedder := knowledge.NewCachedEmbedder(
		knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel, cfg.VectorStore.VectorSize),
		cfg.Pipeline.EmbedCacheSize,
		cfg.Pipeline.EmbedCacheTTL,
	)

	learningRepo := repository.NewLearningRepository(db)
	queryLogRepo := repository.NewQueryLogRepository(db)
	breaker := services.NewCircuitBreaker("postgres", 5, 2, 30*time.Second, zlog)
	cache := services.NewSemanticCache(embedder, index, learningRepo, breaker,
		cfg.VectorStore.LearnedNamespace, cfg.Pipeline.SimilarityThreshold, zlog)

	processor := services.NewFeedbackProcessor(queryLogRepo, learningRepo, cache, cfg.Jobs.FeedbackWindow, zlog)
	stats, err := processor.Run(ctx)
	if err != nil {
		zlog.Error("Feedback batch failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("scanned=%d created=%d updated=%d failed=%d\n",
		stats.Scanned, stats.Created, stats.Updated, stats.Failed)
}
