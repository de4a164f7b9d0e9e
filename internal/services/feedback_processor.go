package services

import (
	"context"
	"sync"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"github.com/inmohub/backend-go/internal/repository"
	"go.uber.org/zap"
)

// ProcessStats 一次反馈学习批次的统计
type ProcessStats struct {
	Scanned int // 窗口内已评分的日志条数
	Created int // 新建的学习条目
	Updated int // 折算进已有条目的评分
	Failed  int // 处理失败的日志
}

// FeedbackProcessor 反馈学习批处理。把窗口内带评分的问答日志
// 折算进response_learning，并把新条目的问题向量异步写进语义缓存。
// 同一条日志重复跑批会被重复折算，调度侧用分布式锁保证单实例运行。
type FeedbackProcessor struct {
	queryLogs repository.QueryLogRepository
	learning  repository.LearningRepository
	cache     *SemanticCache
	window    time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewFeedbackProcessor 创建批处理器。window是回看窗口。
func NewFeedbackProcessor(
	queryLogs repository.QueryLogRepository,
	learning repository.LearningRepository,
	cache *SemanticCache,
	window time.Duration,
	logger *zap.Logger,
) *FeedbackProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &FeedbackProcessor{
		queryLogs: queryLogs,
		learning:  learning,
		cache:     cache,
		window:    window,
		now:       time.Now,
		logger:    logger,
	}
}

// Run 跑一个批次。单条日志失败不中断批次，计入Failed继续。
func (p *FeedbackProcessor) Run(ctx context.Context) (*ProcessStats, error) {
	since := p.now().Add(-p.window)
	logs, err := p.queryLogs.RecentRated(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &ProcessStats{Scanned: len(logs)}
	var wg sync.WaitGroup
	for i := range logs {
		entry := &logs[i]
		if entry.FeedbackRating == nil {
			continue
		}
		created, err := p.fold(ctx, entry, &wg)
		if err != nil {
			stats.Failed++
			p.logger.Warn("Feedback fold failed",
				zap.Uint("query_log_id", entry.ID),
				zap.Error(err))
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	wg.Wait()

	p.logger.Info("Feedback batch finished",
		zap.Int("scanned", stats.Scanned),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// fold 单条评分折算。已有条目做加权平均，没有就建新条目。
func (p *FeedbackProcessor) fold(ctx context.Context, log *models.QueryLog, wg *sync.WaitGroup) (created bool, err error) {
	normalized := NormalizeQuery(log.Query)
	delta := QualityDelta(*log.FeedbackRating)

	existing, err := p.learning.GetByQuery(ctx, normalized)
	if err != nil {
		return false, err
	}

	if existing != nil {
		count := existing.UsageCount
		score := (existing.QualityScore*float64(count) + delta) / float64(count+1)
		if err := p.learning.UpdateScore(ctx, existing.ID, score, count+1, p.now()); err != nil {
			return false, err
		}
		return false, nil
	}

	entry := &models.LearnedResponse{
		Query:          normalized,
		Answer:         log.Response,
		QualityScore:   delta,
		UsageCount:     1,
		LastImprovedAt: p.now(),
	}
	if err := p.learning.Create(ctx, entry); err != nil {
		return false, err
	}

	embeddingID := models.EmbeddingIDFor(entry.ID)
	if err := p.learning.SetEmbeddingID(ctx, entry.ID, embeddingID); err != nil {
		return false, err
	}
	entry.EmbeddingID = embeddingID

	// 向量写入不阻塞批次，失败只在缓存侧记日志
	if p.cache != nil {
		wg.Add(1)
		go func(id, query string) {
			defer wg.Done()
			p.cache.Save(ctx, id, query)
		}(embeddingID, normalized)
	}
	return true, nil
}
