package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LearnedResponse 已学习的问答缓存条目。
// QualityScore是折算进来的所有评分的加权平均，取值[-1, 1]；
// UsageCount等于折算进来的评分条数。
type LearnedResponse struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Query          string    `json:"query" gorm:"type:text;not null;uniqueIndex:idx_response_learning_query,length:512"` // 规范化后的问题
	Answer         string    `json:"answer" gorm:"type:text"`
	QualityScore   float64   `json:"quality_score" gorm:"not null;default:0"`
	UsageCount     int64     `json:"usage_count" gorm:"not null;default:1"`
	EmbeddingID    string    `json:"embedding_id" gorm:"size:128;index"`
	LastImprovedAt time.Time `json:"last_improved_at"`
}

// TableName 指定表名
func (LearnedResponse) TableName() string {
	return "response_learning"
}

const embeddingIDPrefix = "resp_"

// EmbeddingIDFor 生成条目在learned_responses命名空间里的向量ID
func EmbeddingIDFor(id uint) string {
	return fmt.Sprintf("%s%d", embeddingIDPrefix, id)
}

// ParseEmbeddingID 从向量ID中解析出条目主键
func ParseEmbeddingID(embeddingID string) (uint, error) {
	suffix := strings.TrimPrefix(embeddingID, embeddingIDPrefix)
	if suffix == embeddingID {
		return 0, fmt.Errorf("embedding id %q has no %q prefix", embeddingID, embeddingIDPrefix)
	}
	id, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("embedding id %q has non-numeric suffix: %w", embeddingID, err)
	}
	return uint(id), nil
}
