package knowledge

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// QdrantOptions Qdrant客户端配置
type QdrantOptions struct {
	Endpoint   string
	APIKey     string
	UseTLS     bool
	Timeout    time.Duration
	VectorSize int
	Distance   string
}

type qdrantVectorIndex struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	vectorSize int
	distance   string
}

// NewQdrantVectorIndex 创建Qdrant向量索引
func NewQdrantVectorIndex(opts QdrantOptions) (VectorIndex, error) {
	if opts.Endpoint == "" {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://localhost:6333", scheme)
	}
	if !strings.HasPrefix(opts.Endpoint, "http") {
		scheme := "http"
		if opts.UseTLS {
			scheme = "https"
		}
		opts.Endpoint = fmt.Sprintf("%s://%s", scheme, opts.Endpoint)
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "Cosine"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &qdrantVectorIndex{
		client:     &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		apiKey:     opts.APIKey,
		vectorSize: opts.VectorSize,
		distance:   formatQdrantDistance(opts.Distance),
	}, nil
}

func formatQdrantDistance(value string) string {
	switch strings.ToLower(value) {
	case "dot", "dotproduct", "ip":
		return "Dot"
	case "euclid", "l2":
		return "Euclid"
	default:
		return "Cosine"
	}
}

// qdrantPointID Qdrant只接受UUID或整数做点ID，
// 把业务ID哈希成稳定UUID，原始ID放进payload
func qdrantPointID(id string) string {
	sum := md5.Sum([]byte(id))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

func (s *qdrantVectorIndex) collectionName(namespace string) string {
	return url.PathEscape(namespace)
}

func (s *qdrantVectorIndex) ensureCollection(ctx context.Context, namespace string) error {
	name := s.collectionName(namespace)
	resp, err := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", name), nil)
	if err == nil && resp.StatusCode == http.StatusOK {
		resp.Body.Close()
		return nil
	}
	if resp != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     s.vectorSize,
			"distance": s.distance,
		},
	}
	resp, err = s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", name), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("create collection %s failed: %s", name, resp.Status)
	}
	return nil
}

func (s *qdrantVectorIndex) Upsert(ctx context.Context, namespace string, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return err
	}

	qdrantPoints := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		if len(p.Vector) != s.vectorSize {
			return fmt.Errorf("vector for %s has dimension %d, want %d", p.ID, len(p.Vector), s.vectorSize)
		}
		payload := make(map[string]interface{}, len(p.Metadata)+1)
		for k, v := range p.Metadata {
			payload[k] = v
		}
		payload["_id"] = p.ID

		qdrantPoints = append(qdrantPoints, map[string]interface{}{
			"id":      qdrantPointID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		})
	}

	body := map[string]interface{}{"points": qdrantPoints}
	resp, err := s.doRequest(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collectionName(namespace)), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant upsert failed: %s %s", resp.Status, string(raw))
	}
	return nil
}

func (s *qdrantVectorIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 10
	}

	body := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vectors": false,
	}
	if len(filter) > 0 {
		must := make([]map[string]interface{}, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]interface{}{
				"key":   key,
				"match": map[string]interface{}{"value": value},
			})
		}
		body["filter"] = map[string]interface{}{"must": must}
	}

	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collectionName(namespace)), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search failed: %s %s", resp.Status, string(raw))
	}

	var searchResp struct {
		Result []struct {
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, err
	}

	matches := make([]VectorMatch, 0, len(searchResp.Result))
	for _, item := range searchResp.Result {
		payload := item.Payload
		id := ""
		if val, ok := payload["_id"].(string); ok {
			id = val
		}
		delete(payload, "_id")

		matches = append(matches, VectorMatch{
			ID:       id,
			Score:    item.Score,
			Metadata: payload,
		})
	}
	return matches, nil
}

func (s *qdrantVectorIndex) DeleteOne(ctx context.Context, namespace string, id string) error {
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return err
	}

	body := map[string]interface{}{
		"points": []string{qdrantPointID(id)},
	}
	resp, err := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collectionName(namespace)), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant delete failed: %s %s", resp.Status, string(raw))
	}
	return nil
}

func (s *qdrantVectorIndex) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := s.doRequest(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (s *qdrantVectorIndex) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	return s.client.Do(req)
}
