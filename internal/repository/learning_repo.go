package repository

import (
	"context"
	"errors"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"gorm.io/gorm"
)

// learningRepository 学习型回答仓库实现
type learningRepository struct {
	db *gorm.DB
}

// NewLearningRepository 创建学习型回答仓库
func NewLearningRepository(db *gorm.DB) LearningRepository {
	return &learningRepository{db: db}
}

// GetByQuery 按规范化问题查询条目，不存在时返回(nil, nil)
func (r *learningRepository) GetByQuery(ctx context.Context, normalizedQuery string) (*models.LearnedResponse, error) {
	var entry models.LearnedResponse
	err := r.db.WithContext(ctx).Where("query = ?", normalizedQuery).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetByID 按主键查询条目，不存在时返回(nil, nil)
func (r *learningRepository) GetByID(ctx context.Context, id uint) (*models.LearnedResponse, error) {
	var entry models.LearnedResponse
	err := r.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *learningRepository) GetByEmbeddingIDs(ctx context.Context, embeddingIDs []string) ([]models.LearnedResponse, error) {
	if len(embeddingIDs) == 0 {
		return nil, nil
	}
	var entries []models.LearnedResponse
	err := r.db.WithContext(ctx).Where("embedding_id IN ?", embeddingIDs).Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *learningRepository) Create(ctx context.Context, entry *models.LearnedResponse) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *learningRepository) UpdateScore(ctx context.Context, id uint, score float64, usageCount int64, improvedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.LearnedResponse{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quality_score":    score,
			"usage_count":      usageCount,
			"last_improved_at": improvedAt,
		}).Error
}

func (r *learningRepository) SetEmbeddingID(ctx context.Context, id uint, embeddingID string) error {
	return r.db.WithContext(ctx).Model(&models.LearnedResponse{}).
		Where("id = ?", id).
		Update("embedding_id", embeddingID).Error
}
