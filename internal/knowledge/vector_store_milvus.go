package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	UseTLS     bool
	Timeout    time.Duration
	VectorSize int
	Distance   string
}

type milvusVectorIndex struct {
	milvusClient client.Client
	vectorSize   int
	distance     string

	mu     sync.Mutex
	loaded map[string]bool // 已确认存在并加载的集合
}

// NewMilvusVectorIndex 创建Milvus向量索引
func NewMilvusVectorIndex(opts MilvusOptions) (VectorIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "COSINE"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorIndex{
		milvusClient: milvusClient,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
		loaded:       make(map[string]bool),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

var milvusNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// collectionName Milvus集合名只允许字母数字下划线
func (s *milvusVectorIndex) collectionName(namespace string) string {
	return "ns_" + milvusNameSanitizer.ReplaceAllString(namespace, "_")
}

func (s *milvusVectorIndex) ensureCollection(ctx context.Context, namespace string) (string, error) {
	name := s.collectionName(namespace)

	s.mu.Lock()
	ready := s.loaded[name]
	s.mu.Unlock()
	if ready {
		return name, nil
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: name,
			Description:    fmt.Sprintf("Namespace %s vectors", namespace),
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "development",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "256"},
				},
				{
					Name:       "content_type",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       "payload",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "65535"},
				},
				{
					Name:       "vector",
					DataType:   entity.FieldTypeFloatVector,
					TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return "", fmt.Errorf("failed to create collection: %w", err)
		}

		index, indexErr := s.newIndex()
		if indexErr != nil {
			return "", fmt.Errorf("failed to create index: %w", indexErr)
		}
		if err := s.milvusClient.CreateIndex(ctx, name, "vector", index, false); err != nil {
			return "", fmt.Errorf("failed to create index for %s: %w", name, err)
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, name, false); err != nil {
		return "", fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	s.mu.Lock()
	s.loaded[name] = true
	s.mu.Unlock()
	return name, nil
}

// newIndex 优先HNSW，失败时回退IVF_FLAT
func (s *milvusVectorIndex) newIndex() (entity.Index, error) {
	metric := entity.MetricType(s.distance)
	index, err := entity.NewIndexHNSW(metric, 8, 64)
	if err == nil {
		return index, nil
	}
	return entity.NewIndexIvfFlat(metric, 128)
}

func (s *milvusVectorIndex) Upsert(ctx context.Context, namespace string, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	name, err := s.ensureCollection(ctx, namespace)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(points))
	developments := make([]string, 0, len(points))
	contentTypes := make([]string, 0, len(points))
	payloads := make([]string, 0, len(points))
	vectors := make([][]float32, 0, len(points))

	for _, p := range points {
		if len(p.Vector) != s.vectorSize {
			return fmt.Errorf("vector for %s has dimension %d, want %d", p.ID, len(p.Vector), s.vectorSize)
		}
		payload, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
		developments = append(developments, metadataString(p.Metadata, "development"))
		contentTypes = append(contentTypes, metadataString(p.Metadata, "content_type"))
		payloads = append(payloads, string(payload))
		vectors = append(vectors, p.Vector)
	}

	_, err = s.milvusClient.Upsert(ctx, name, "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnVarChar("development", developments),
		entity.NewColumnVarChar("content_type", contentTypes),
		entity.NewColumnVarChar("payload", payloads),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}

	return nil
}

func (s *milvusVectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	name, err := s.ensureCollection(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		name,
		[]string{},
		buildMilvusExpr(filter),
		[]string{"payload"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		entity.MetricType(s.distance),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}
	var payloads []string
	for _, field := range result.Fields {
		if field.Name() == "payload" {
			if col, ok := field.(*entity.ColumnVarChar); ok {
				payloads = col.Data()
			}
		}
	}

	matches := make([]VectorMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount && i < len(ids); i++ {
		metadata := make(map[string]interface{})
		if i < len(payloads) && payloads[i] != "" {
			// payload解码失败不致命，返回空元数据即可
			_ = json.Unmarshal([]byte(payloads[i]), &metadata)
		}
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, VectorMatch{
			ID:       ids[i],
			Score:    score,
			Metadata: metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

func (s *milvusVectorIndex) DeleteOne(ctx context.Context, namespace string, id string) error {
	name, err := s.ensureCollection(ctx, namespace)
	if err != nil {
		return err
	}

	expr := fmt.Sprintf("id == %q", id)
	if err := s.milvusClient.Delete(ctx, name, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func (s *milvusVectorIndex) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

// buildMilvusExpr 把等值过滤条件拼成Milvus布尔表达式
func buildMilvusExpr(filter VectorFilter) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		terms = append(terms, fmt.Sprintf("%s == %q", k, filter[k]))
	}
	return strings.Join(terms, " && ")
}

func metadataString(metadata map[string]interface{}, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
