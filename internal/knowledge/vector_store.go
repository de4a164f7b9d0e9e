package knowledge

import (
	"context"
	"fmt"

	"github.com/inmohub/backend-go/internal/config"
)

// VectorPoint 写入向量索引的点
type VectorPoint struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// VectorMatch 近邻查询结果
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// VectorFilter 元数据等值过滤条件
type VectorFilter map[string]string

// VectorIndex 向量索引抽象。命名空间按地理分区（zone）划分，
// 另有一个learned_responses命名空间存缓存回答的向量。
type VectorIndex interface {
	Upsert(ctx context.Context, namespace string, points []VectorPoint) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error)
	DeleteOne(ctx context.Context, namespace string, id string) error
	Ready() bool
}

// NewVectorIndex 按配置选择向量索引后端
func NewVectorIndex(cfg config.VectorStoreConfig) (VectorIndex, error) {
	switch cfg.Provider {
	case "milvus", "":
		return NewMilvusVectorIndex(MilvusOptions{
			Address:    cfg.Milvus.Address,
			Username:   cfg.Milvus.Username,
			Password:   cfg.Milvus.Password,
			Database:   cfg.Milvus.Database,
			UseTLS:     cfg.Milvus.UseTLS,
			Timeout:    cfg.Milvus.Timeout,
			VectorSize: cfg.VectorSize,
			Distance:   cfg.Distance,
		})
	case "qdrant":
		return NewQdrantVectorIndex(QdrantOptions{
			Endpoint:   cfg.Qdrant.Endpoint,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Timeout:    cfg.Qdrant.Timeout,
			VectorSize: cfg.VectorSize,
			Distance:   cfg.Distance,
		})
	default:
		return nil, fmt.Errorf("unknown vector store provider: %s", cfg.Provider)
	}
}
