package models

import "time"

// ChunkStat 每个向量块的使用统计，块被引用并收到评分后更新。
// 计数只增不减；块被重建索引时整行被新块的统计取代。
type ChunkStat struct {
	ChunkID      string    `json:"chunk_id" gorm:"primaryKey;size:128"`
	SuccessCount int64     `json:"success_count" gorm:"not null;default:0"`
	FailCount    int64     `json:"fail_count" gorm:"not null;default:0"`
	LastUsed     time.Time `json:"last_used" gorm:"index"`
}

// TableName 指定表名
func (ChunkStat) TableName() string {
	return "chunk_stats"
}

// SampleCount 样本总数
func (c *ChunkStat) SampleCount() int64 {
	return c.SuccessCount + c.FailCount
}
