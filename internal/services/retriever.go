package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/inmohub/backend-go/internal/knowledge"
	"go.uber.org/zap"
)

// Chunk 检索回来的文档片段。Score是查询时的相似度，不落库。
type Chunk struct {
	ID          string  `json:"id"`
	Zone        string  `json:"zone"`
	Development string  `json:"development"`
	ContentType string  `json:"content_type"`
	Source      string  `json:"source"`
	Page        int     `json:"page"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

// RetrieveOptions 检索选项
type RetrieveOptions struct {
	Development string
	ContentType string
	TopK        int
}

// Retriever 按区域命名空间从向量索引取最相关的块
type Retriever struct {
	embedder        knowledge.Embedder
	index           knowledge.VectorIndex
	namespacePrefix string
	logger          *zap.Logger
}

// NewRetriever 创建检索器。embedder应传入带缓存的实例，
// 和语义缓存共享同一份嵌入缓存。
func NewRetriever(embedder knowledge.Embedder, index knowledge.VectorIndex, namespacePrefix string, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:        embedder,
		index:           index,
		namespacePrefix: namespacePrefix,
		logger:          logger,
	}
}

// ZoneNamespace 区域到命名空间的映射
func (r *Retriever) ZoneNamespace(zone string) string {
	zone = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(zone)), " ", "_")
	if r.namespacePrefix == "" {
		return zone
	}
	return r.namespacePrefix + "_" + zone
}

// Retrieve 返回与问题最相关的块，按相似度降序。
// 空结果是合法结果，由调用方决定如何回答。
func (r *Retriever) Retrieve(ctx context.Context, question, zone string, opts RetrieveOptions) ([]Chunk, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}

	vector, err := r.embedder.Embed(ctx, NormalizeQuery(question))
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	filter := knowledge.VectorFilter{}
	if opts.Development != "" {
		filter["development"] = opts.Development
	}
	if opts.ContentType != "" {
		filter["content_type"] = opts.ContentType
	}

	matches, err := r.index.Query(ctx, r.ZoneNamespace(zone), vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(matches))
	for _, m := range matches {
		chunks = append(chunks, chunkFromMatch(zone, m))
	}

	r.logger.Debug("Retrieved chunks",
		zap.String("zone", zone),
		zap.Int("count", len(chunks)))
	return chunks, nil
}

func chunkFromMatch(zone string, m knowledge.VectorMatch) Chunk {
	chunk := Chunk{
		ID:    m.ID,
		Zone:  zone,
		Score: m.Score,
	}
	if m.Metadata == nil {
		return chunk
	}
	if v, ok := m.Metadata["development"].(string); ok {
		chunk.Development = v
	}
	if v, ok := m.Metadata["content_type"].(string); ok {
		chunk.ContentType = v
	}
	if v, ok := m.Metadata["source"].(string); ok {
		chunk.Source = v
	}
	if v, ok := m.Metadata["text"].(string); ok {
		chunk.Text = v
	}
	switch page := m.Metadata["page"].(type) {
	case float64:
		chunk.Page = int(page)
	case int:
		chunk.Page = page
	}
	return chunk
}
