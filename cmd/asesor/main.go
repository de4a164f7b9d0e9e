package main

import (
	"context"
	"flag"
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

func main() {
	question := flag.String("q", "", "pregunta del cliente")
	zone := flag.String("zone", "", "zona geográfica (namespace de inventario)")
	development := flag.String("development", "", "filtrar por desarrollo")
	contentType := flag.String("content-type", "", "filtrar por tipo de contenido")
	strict := flag.Bool("strict", false, "validación estricta contra el texto de los fragmentos")
	flag.Parse()

	if *question == "" || *zone == "" {
		fmt.Fprintln(os.Stderr, "uso: asesor -q <pregunta> -zone <zona> [-development d] [-content-type t] [-strict]")
		os.Exit(2)
	}

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

	db, err := database.Open(cfg)
	if err != nil {
		zlog.Fatal("Failed to connect database", zap.Error(err))
	}
	defer database.Close(db)

	index, err := knowledge.NewVectorIndex(cfg.VectorStore)
	if err != nil {
		zlog.Fatal("Failed to connect vector store", zap.Error(err))
	}

	embedder := knowledge.NewCachedEmbedder(
		knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel, cfg.VectorStore.VectorSize),
		cfg.Pipeline.EmbedCacheSize,
		cfg.Pipeline.EmbedCacheTTL,
	)
	chat := knowledge.NewOpenAIChatModel(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel)

	learningRepo := repository.NewLearningRepository(db)
	queryLogRepo := repository.NewQueryLogRepository(db)
	chunkStatRepo := repository.NewChunkStatRepository(db)

	breaker := services.NewCircuitBreaker("postgres", 5, 2, 30*time.Second, zlog)
	cache := services.NewSemanticCache(embedder, index, learningRepo, breaker,
		cfg.VectorStore.LearnedNamespace, cfg.Pipeline.SimilarityThreshold, zlog)
	retriever := services.NewRetriever(embedder, index, cfg.VectorStore.NamespacePrefix, zlog)
	generator := services.NewAnswerGenerator(chat, cfg.AI.Temperature, cfg.AI.MaxTokens, cfg.AI.RequestTimeout, zlog)
	validator := services.NewCitationValidator(services.NewHeuristicClaimDetector(), zlog)

	svc := services.NewAnswerService(cache, retriever, generator, validator,
		queryLogRepo, chunkStatRepo, breaker,
		cfg.Pipeline.MinQuality, cfg.Pipeline.TopK, zlog)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	outcome, err := svc.Answer(ctx, *question, services.AnswerOptions{
		Zone:        *zone,
		Development: *development,
		ContentType: *contentType,
		Strict:      *strict,
	})
	if err != nil {
		zlog.Error("Answer failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(outcome.Answer)
	fmt.Println()
	fmt.Printf("fuente: %s", outcome.Source)
	if outcome.Degraded {
		fmt.Print(" (degradado)")
	}
	fmt.Println()
	if outcome.Validation != nil {
		fmt.Printf("citas válidas: %v\n", outcome.Validation.ValidCitations)
		for _, w := range outcome.Validation.Warnings {
			fmt.Printf("aviso: %s\n", w)
		}
	}
	if outcome.QueryLogID != 0 {
		fmt.Printf("query_log_id: %d\n", outcome.QueryLogID)
	}
}
