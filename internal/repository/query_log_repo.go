package repository

import (
	"context"
	"time"

	"github.com/inmohub/backend-go/internal/models"
	"gorm.io/gorm"
)

// queryLogRepository 问答日志仓库实现
type queryLogRepository struct {
	db *gorm.DB
}

// NewQueryLogRepository 创建问答日志仓库
func NewQueryLogRepository(db *gorm.DB) QueryLogRepository {
	return &queryLogRepository{db: db}
}

func (r *queryLogRepository) Insert(ctx context.Context, log *models.QueryLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *queryLogRepository) AttachFeedback(ctx context.Context, id uint, rating int) error {
	return r.db.WithContext(ctx).Model(&models.QueryLog{}).
		Where("id = ?", id).
		Update("feedback_rating", rating).Error
}

func (r *queryLogRepository) RecentRated(ctx context.Context, since time.Time) ([]models.QueryLog, error) {
	var logs []models.QueryLog
	err := r.db.WithContext(ctx).
		Where("feedback_rating IS NOT NULL AND created_at >= ?", since).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
