package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	AI          AIConfig
	VectorStore VectorStoreConfig
	Pipeline    PipelineConfig
	Jobs        JobsConfig
	LogLevel    string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

type AIConfig struct {
	OpenAIAPIKey   string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

type VectorStoreConfig struct {
	Provider         string // milvus | qdrant
	NamespacePrefix  string
	LearnedNamespace string
	VectorSize       int
	Distance         string
	Milvus           MilvusConfig
	Qdrant           QdrantConfig
}

type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	UseTLS   bool
	Timeout  time.Duration
}

type QdrantConfig struct {
	Endpoint string
	APIKey   string
	UseTLS   bool
	Timeout  time.Duration
}

type PipelineConfig struct {
	TopK                int
	SimilarityThreshold float64 // 语义缓存近邻相似度下限
	MinQuality          float64 // 命中缓存所需的最低质量分
	EmbedCacheSize      int
	EmbedCacheTTL       time.Duration
}

type JobsConfig struct {
	FeedbackWindow time.Duration // 反馈学习任务回看窗口
	StaleAfter     time.Duration // 块健康扫描的陈旧阈值
	LockTTL        time.Duration
}

var AppConfig *Config

// LoadConfig 加载配置：默认值 < 配置文件 < 环境变量
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 配置文件可选，读取失败时只用默认值和环境变量
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 默认值
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.conn_max_idle_time", "30m")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.enabled", false)

	viper.SetDefault("ai.chat_model", "gpt-4o-mini")
	viper.SetDefault("ai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("ai.max_tokens", 1024)
	viper.SetDefault("ai.temperature", 0.2)
	viper.SetDefault("ai.request_timeout", "30s")

	viper.SetDefault("vector_store.provider", "milvus")
	viper.SetDefault("vector_store.namespace_prefix", "inventory")
	viper.SetDefault("vector_store.learned_namespace", "learned_responses")
	viper.SetDefault("vector_store.vector_size", 1536)
	viper.SetDefault("vector_store.distance", "cosine")
	viper.SetDefault("vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("vector_store.milvus.database", "default")
	viper.SetDefault("vector_store.milvus.tls", false)
	viper.SetDefault("vector_store.milvus.timeout", "10s")
	viper.SetDefault("vector_store.qdrant.endpoint", "http://localhost:6333")
	viper.SetDefault("vector_store.qdrant.timeout", "10s")

	viper.SetDefault("pipeline.top_k", 5)
	viper.SetDefault("pipeline.similarity_threshold", 0.80)
	viper.SetDefault("pipeline.min_quality", 0.7)
	viper.SetDefault("pipeline.embed_cache_size", 100)
	viper.SetDefault("pipeline.embed_cache_ttl", "1h")

	viper.SetDefault("jobs.feedback_window", "24h")
	viper.SetDefault("jobs.stale_after", "1440h") // 60天
	viper.SetDefault("jobs.lock_ttl", "10m")

	// 读取环境变量
	viper.SetEnvPrefix("INMOHUB")
	viper.AutomaticEnv()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("ai.openai_api_key", apiKey)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
		viper.Set("redis.enabled", true)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if milvusAddr := os.Getenv("MILVUS_ADDRESS"); milvusAddr != "" {
		viper.Set("vector_store.provider", "milvus")
		viper.Set("vector_store.milvus.address", milvusAddr)
	}
	if qdrantEndpoint := os.Getenv("QDRANT_ENDPOINT"); qdrantEndpoint != "" {
		viper.Set("vector_store.provider", "qdrant")
		viper.Set("vector_store.qdrant.endpoint", qdrantEndpoint)
	}

	AppConfig = &Config{
		Database: DatabaseConfig{
			URL:             viper.GetString("database.url"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: viper.GetDuration("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			Enabled:  viper.GetBool("redis.enabled"),
		},
		AI: AIConfig{
			OpenAIAPIKey:   viper.GetString("ai.openai_api_key"),
			ChatModel:      viper.GetString("ai.chat_model"),
			EmbeddingModel: viper.GetString("ai.embedding_model"),
			MaxTokens:      viper.GetInt("ai.max_tokens"),
			Temperature:    viper.GetFloat64("ai.temperature"),
			RequestTimeout: viper.GetDuration("ai.request_timeout"),
		},
		VectorStore: VectorStoreConfig{
			Provider:         viper.GetString("vector_store.provider"),
			NamespacePrefix:  viper.GetString("vector_store.namespace_prefix"),
			LearnedNamespace: viper.GetString("vector_store.learned_namespace"),
			VectorSize:       viper.GetInt("vector_store.vector_size"),
			Distance:         viper.GetString("vector_store.distance"),
			Milvus: MilvusConfig{
				Address:  viper.GetString("vector_store.milvus.address"),
				Username: viper.GetString("vector_store.milvus.username"),
				Password: viper.GetString("vector_store.milvus.password"),
				Database: viper.GetString("vector_store.milvus.database"),
				UseTLS:   viper.GetBool("vector_store.milvus.tls"),
				Timeout:  viper.GetDuration("vector_store.milvus.timeout"),
			},
			Qdrant: QdrantConfig{
				Endpoint: viper.GetString("vector_store.qdrant.endpoint"),
				APIKey:   viper.GetString("vector_store.qdrant.api_key"),
				UseTLS:   viper.GetBool("vector_store.qdrant.tls"),
				Timeout:  viper.GetDuration("vector_store.qdrant.timeout"),
			},
		},
		Pipeline: PipelineConfig{
			TopK:                viper.GetInt("pipeline.top_k"),
			SimilarityThreshold: viper.GetFloat64("pipeline.similarity_threshold"),
			MinQuality:          viper.GetFloat64("pipeline.min_quality"),
			EmbedCacheSize:      viper.GetInt("pipeline.embed_cache_size"),
			EmbedCacheTTL:       viper.GetDuration("pipeline.embed_cache_ttl"),
		},
		Jobs: JobsConfig{
			FeedbackWindow: viper.GetDuration("jobs.feedback_window"),
			StaleAfter:     viper.GetDuration("jobs.stale_after"),
			LockTTL:        viper.GetDuration("jobs.lock_ttl"),
		},
		LogLevel: viper.GetString("log_level"),
	}

	if AppConfig.Database.URL == "" {
		return fmt.Errorf("database.url is required (set DATABASE_URL)")
	}

	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
