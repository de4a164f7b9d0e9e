package models

import "time"

// QueryLog 原始问答日志，评分在用户反馈后补写
type QueryLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Query          string    `json:"query" gorm:"type:text;not null"`
	Response       string    `json:"response" gorm:"type:text"`
	FeedbackRating *int      `json:"feedback_rating" gorm:"index"` // 1-5星，未评分时为NULL
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (QueryLog) TableName() string {
	return "query_logs"
}
