package services

import (
	"context"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"github.com/inmohub/backend-go/internal/repository"
	"go.uber.org/zap"
)

const (
	failingRatioMultiplier = 3
	failingMinSamples      = 3
)

// HealthReport 块健康扫描报告。只识别问题块，不做任何清理动作。
type HealthReport struct {
	Failing    []models.ChunkStat // 失败数超过成功数三倍且样本足够
	Stale      []models.ChunkStat // 超过陈旧阈值没被引用过
	ProblemIDs []string           // 两类并集去重
}

// ChunkHealthScanner 扫描chunk_stats找出质量可疑或长期没人用的块
type ChunkHealthScanner struct {
	stats      repository.ChunkStatRepository
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewChunkHealthScanner 创建扫描器。staleAfter是陈旧阈值，默认60天。
func NewChunkHealthScanner(stats repository.ChunkStatRepository, staleAfter time.Duration, logger *zap.Logger) *ChunkHealthScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		staleAfter = 60 * 24 * time.Hour
	}
	return &ChunkHealthScanner{
		stats:      stats,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Scan 跑一次完整扫描
func (s *ChunkHealthScanner) Scan(ctx context.Context) (*HealthReport, error) {
	failing, err := s.stats.FindFailing(ctx, failingRatioMultiplier, failingMinSamples)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.stats.FindStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{Failing: failing, Stale: stale}
	seen := make(map[string]bool, len(failing)+len(stale))
	for _, stat := range failing {
		if !seen[stat.ChunkID] {
			seen[stat.ChunkID] = true
			report.ProblemIDs = append(report.ProblemIDs, stat.ChunkID)
		}
	}
	for _, stat := range stale {
		if !seen[stat.ChunkID] {
			seen[stat.ChunkID] = true
			report.ProblemIDs = append(report.ProblemIDs, stat.ChunkID)
		}
	}

	s.logger.Info("Chunk health scan finished",
		zap.Int("failing", len(failing)),
		zap.Int("stale", len(stale)),
		zap.Int("problems", len(report.ProblemIDs)))
	return report, nil
}
