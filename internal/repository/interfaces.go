package repository

import (
	"context"
	"time"

	"github.com/inmohub/backend-go/internal/models"
)

// ChunkStatRepository 块统计仓库
type ChunkStatRepository interface {
	// RecordOutcome 为被引用的块累加一次成功/失败，并刷新last_used
	RecordOutcome(ctx context.Context, chunkID string, success bool) error
	// TouchUsed 只刷新last_used，评分为中性时使用
	TouchUsed(ctx context.Context, chunkID string) error
	// FindFailing 失败数远超成功数且样本足够的块，按失败数降序、陈旧度次序
	FindFailing(ctx context.Context, ratioMultiplier int64, minSamples int64) ([]models.ChunkStat, error)
	// FindStale 长期未被引用的块
	FindStale(ctx context.Context, cutoff time.Time) ([]models.ChunkStat, error)
}

// LearningRepository 学习型回答仓库。
// 单条查询在条目不存在时返回(nil, nil)，错误只代表访问失败。
type LearningRepository interface {
	GetByQuery(ctx context.Context, normalizedQuery string) (*models.LearnedResponse, error)
	GetByID(ctx context.Context, id uint) (*models.LearnedResponse, error)
	GetByEmbeddingIDs(ctx context.Context, embeddingIDs []string) ([]models.LearnedResponse, error)
	Create(ctx context.Context, entry *models.LearnedResponse) error
	// UpdateScore 写回折算后的质量分和使用次数
	UpdateScore(ctx context.Context, id uint, score float64, usageCount int64, improvedAt time.Time) error
	SetEmbeddingID(ctx context.Context, id uint, embeddingID string) error
}

// QueryLogRepository 问答日志仓库
type QueryLogRepository interface {
	Insert(ctx context.Context, log *models.QueryLog) error
	AttachFeedback(ctx context.Context, id uint, rating int) error
	// RecentRated 返回窗口内已评分的日志，反馈学习任务消费
	RecentRated(ctx context.Context, since time.Time) ([]models.QueryLog, error)
}
