package repository

import (
	"context"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// chunkStatRepository 块统计仓库实现
type chunkStatRepository struct {
	db *gorm.DB
}

// NewChunkStatRepository 创建块统计仓库
func NewChunkStatRepository(db *gorm.DB) ChunkStatRepository {
	return &chunkStatRepository{db: db}
}

// RecordOutcome 累加成功/失败计数，行不存在时插入
func (r *chunkStatRepository) RecordOutcome(ctx context.Context, chunkID string, success bool) error {
	now := time.Now()
	stat := models.ChunkStat{ChunkID: chunkID, LastUsed: now}

	var successInc, failInc int64
	if success {
		stat.SuccessCount = 1
		successInc = 1
	} else {
		stat.FailCount = 1
		failInc = 1
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"success_count": gorm.Expr("chunk_stats.success_count + ?", successInc),
			"fail_count":    gorm.Expr("chunk_stats.fail_count + ?", failInc),
			"last_used":     now,
		}),
	}).Create(&stat).Error
}

// TouchUsed 刷新last_used
func (r *chunkStatRepository) TouchUsed(ctx context.Context, chunkID string) error {
	now := time.Now()
	stat := models.ChunkStat{ChunkID: chunkID, LastUsed: now}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chunk_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_used": now,
		}),
	}).Create(&stat).Error
}

// FindFailing 失败率过高的块。
// 条件：fail_count > success_count * ratioMultiplier 且样本总数 >= minSamples。
func (r *chunkStatRepository) FindFailing(ctx context.Context, ratioMultiplier int64, minSamples int64) ([]models.ChunkStat, error) {
	var stats []models.ChunkStat
	err := r.db.WithContext(ctx).
		Where("fail_count > success_count * ? AND success_count + fail_count >= ?", ratioMultiplier, minSamples).
		Order("fail_count DESC, last_used ASC").
		Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// FindStale 长期未被引用的块
func (r *chunkStatRepository) FindStale(ctx context.Context, cutoff time.Time) ([]models.ChunkStat, error) {
	var stats []models.ChunkStat
	err := r.db.WithContext(ctx).
		Where("last_used < ?", cutoff).
		Order("last_used ASC").
		Find(&stats).Error
	if err != nil {
		return nil, err
	}
	return stats, nil
}
