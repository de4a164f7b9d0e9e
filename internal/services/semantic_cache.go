package services

import (
	"context"
	"sort"

	"github.com/inmohub/backend-go/internal/knowledge"
	"github.com/inmohub/backend-go/internal/metrics"
	"github.com/inmohub/backend-go/internal/models"
	"github.com/inmohub/backend-go/internal/repository"
	"go.uber.org/zap"
)

const cacheCandidateLimit = 5

// CacheHit 命中的学习条目及其与本次问题的相似度
type CacheHit struct {
	Entry      *models.LearnedResponse
	Similarity float64
}

// SemanticCache 语义缓存。按嵌入相似度在learned_responses命名空间里
// 找历史问答，质量分和相似度加权排序后返回最优条目。
// 所有查询失败都降级为未命中，缓存故障不影响主流程。
type SemanticCache struct {
	embedder  knowledge.Embedder
	index     knowledge.VectorIndex
	learning  repository.LearningRepository
	breaker   *CircuitBreaker
	namespace string
	threshold float64
	logger    *zap.Logger
}

// NewSemanticCache 创建语义缓存。threshold是命中的最低余弦相似度。
func NewSemanticCache(
	embedder knowledge.Embedder,
	index knowledge.VectorIndex,
	learning repository.LearningRepository,
	breaker *CircuitBreaker,
	namespace string,
	threshold float64,
	logger *zap.Logger,
) *SemanticCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 0.80
	}
	return &SemanticCache{
		embedder:  embedder,
		index:     index,
		learning:  learning,
		breaker:   breaker,
		namespace: namespace,
		threshold: threshold,
		logger:    logger,
	}
}

// Lookup 查询缓存。minQuality过滤掉质量分不够的条目。
// 返回(nil, false)代表未命中，包括一切内部错误。
func (c *SemanticCache) Lookup(ctx context.Context, question string, minQuality float64) (*CacheHit, bool) {
	vector, err := c.embedder.Embed(ctx, NormalizeQuery(question))
	if err != nil {
		c.logger.Warn("Cache lookup degraded to miss: embed failed", zap.Error(err))
		metrics.CacheLookup("error")
		return nil, false
	}

	matches, err := c.index.Query(ctx, c.namespace, vector, cacheCandidateLimit, nil)
	if err != nil {
		c.logger.Warn("Cache lookup degraded to miss: vector query failed", zap.Error(err))
		metrics.CacheLookup("error")
		return nil, false
	}

	similarity := make(map[string]float64, len(matches))
	embeddingIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Score < c.threshold {
			continue
		}
		similarity[m.ID] = m.Score
		embeddingIDs = append(embeddingIDs, m.ID)
	}
	if len(embeddingIDs) == 0 {
		metrics.CacheLookup("miss")
		return nil, false
	}

	var entries []models.LearnedResponse
	err = c.withBreaker(func() error {
		var dbErr error
		entries, dbErr = c.learning.GetByEmbeddingIDs(ctx, embeddingIDs)
		return dbErr
	})
	if err != nil {
		c.logger.Warn("Cache lookup degraded to miss: learning store failed", zap.Error(err))
		metrics.CacheLookup("error")
		return nil, false
	}

	best := rankCandidates(entries, similarity, minQuality)
	if best == nil {
		metrics.CacheLookup("miss")
		return nil, false
	}

	c.logger.Info("Semantic cache hit",
		zap.Uint("entry_id", best.Entry.ID),
		zap.Float64("similarity", best.Similarity),
		zap.Float64("quality", best.Entry.QualityScore))
	metrics.CacheLookup("hit")
	return best, true
}

// rankCandidates 按 0.6*质量 + 0.4*相似度 取最优条目
func rankCandidates(entries []models.LearnedResponse, similarity map[string]float64, minQuality float64) *CacheHit {
	type scored struct {
		hit  CacheHit
		rank float64
	}
	candidates := make([]scored, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		sim, ok := similarity[entry.EmbeddingID]
		if !ok {
			continue
		}
		if entry.QualityScore < minQuality {
			continue
		}
		candidates = append(candidates, scored{
			hit:  CacheHit{Entry: entry, Similarity: sim},
			rank: 0.6*entry.QualityScore + 0.4*sim,
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].rank > candidates[j].rank
	})
	return &candidates[0].hit
}

// Save 把条目的问题向量写进缓存命名空间。尽力而为，失败只记日志。
func (c *SemanticCache) Save(ctx context.Context, embeddingID, question string) {
	vector, err := c.embedder.Embed(ctx, NormalizeQuery(question))
	if err != nil {
		c.logger.Warn("Cache save skipped: embed failed",
			zap.String("embedding_id", embeddingID),
			zap.Error(err))
		return
	}
	err = c.index.Upsert(ctx, c.namespace, []knowledge.VectorPoint{{
		ID:     embeddingID,
		Vector: vector,
		Metadata: map[string]interface{}{
			"query_text": NormalizeQuery(question),
		},
	}})
	if err != nil {
		c.logger.Warn("Cache save failed",
			zap.String("embedding_id", embeddingID),
			zap.Error(err))
		return
	}
	c.logger.Debug("Cache entry saved", zap.String("embedding_id", embeddingID))
}

// Delete 删除缓存向量。和Save一样尽力而为，失败只记日志。
// 先核对数据库里确有对应条目且embedding_id一致，
// 对不上就跳过，避免误删别的条目。
func (c *SemanticCache) Delete(ctx context.Context, embeddingID string) {
	id, err := models.ParseEmbeddingID(embeddingID)
	if err != nil {
		c.logger.Warn("Cache delete skipped: malformed embedding id",
			zap.String("embedding_id", embeddingID),
			zap.Error(err))
		return
	}

	var entry *models.LearnedResponse
	err = c.withBreaker(func() error {
		var dbErr error
		entry, dbErr = c.learning.GetByID(ctx, id)
		return dbErr
	})
	if err != nil {
		c.logger.Warn("Cache delete skipped: entry verification failed",
			zap.String("embedding_id", embeddingID),
			zap.Error(err))
		return
	}
	if entry == nil || entry.EmbeddingID != embeddingID {
		c.logger.Warn("Cache delete skipped: no backing entry",
			zap.String("embedding_id", embeddingID))
		return
	}

	if err := c.index.DeleteOne(ctx, c.namespace, embeddingID); err != nil {
		c.logger.Warn("Cache delete failed",
			zap.String("embedding_id", embeddingID),
			zap.Error(err))
		return
	}
	c.logger.Info("Cache entry deleted", zap.String("embedding_id", embeddingID))
}

func (c *SemanticCache) withBreaker(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Do(fn)
}
