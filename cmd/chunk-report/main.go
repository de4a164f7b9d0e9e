package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/inmohub/backend-go/internal/config"
	"github.com/inmohub/backend-go/internal/database"
	"github.com/inmohub/backend-go/internal/logger"
	"github.com/inmohub/backend-go/internal/repository"
	"github.com/inmohub/backend-go/internal/services"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const jobName = "chunk-report"

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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("Failed to unwrap sql.DB", zap.Error(err))
	}
	checker := database.NewHealthChecker(sqlDB, nil)
	if err := checker.CheckWithRetry(ctx); err != nil {
		zlog.Fatal("Database unhealthy, aborting scan", zap.Error(err))
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

	scanner := services.NewChunkHealthScanner(
		repository.NewChunkStatRepository(db), cfg.Jobs.StaleAfter, zlog)
	report, err := scanner.Scan(ctx)
	if err != nil {
		zlog.Error("Chunk health scan failed", zap.Error(err))
		os.Exit(1)
	}

	fmt.Printf("candidatos a reindexar: %d\n\n", len(report.ProblemIDs))
	if len(report.Failing) > 0 {
		fmt.Println("-- mal evaluados --")
		for _, stat := range report.Failing {
			fmt.Printf("%s success=%d fail=%d last_used=%s\n",
				stat.ChunkID, stat.SuccessCount, stat.FailCount,
				stat.LastUsed.Format(time.RFC3339))
		}
		fmt.Println()
	}
	if len(report.Stale) > 0 {
		fmt.Println("-- sin uso reciente --")
		for _, stat := range report.Stale {
			fmt.Printf("%s last_used=%s\n",
				stat.ChunkID, stat.LastUsed.Format(time.RFC3339))
		}
	}
}
