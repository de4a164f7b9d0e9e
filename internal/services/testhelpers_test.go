package services

import (
	"context"
	"sync"
	"time"

	"github.com/inmohub/backend-go/internal/knowledge"
	"github.com/inmohub/backend-go/internal/models"
)

// 本包单测共用的测试替身

type fakeEmbedder struct {
	mu    sync.Mutex
	vec   []float32
	err   error
	calls int
	// 按文本返回不同向量，空时统一返回vec
	byText map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.byText[text]; ok {
		return v, nil
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }
func (f *fakeEmbedder) Ready() bool     { return f.err == nil }

type fakeIndex struct {
	mu       sync.Mutex
	points   map[string][]knowledge.VectorPoint // namespace -> points
	matches  []knowledge.VectorMatch
	queryErr error
	// 最后一次Query的参数，断言命名空间和过滤条件用
	lastNamespace string
	lastTopK      int
	lastFilter    knowledge.VectorFilter
	deleted       []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[string][]knowledge.VectorPoint)}
}

func (f *fakeIndex) Upsert(ctx context.Context, namespace string, points []knowledge.VectorPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[namespace] = append(f.points[namespace], points...)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, namespace string, vector []float32, topK int, filter knowledge.VectorFilter) ([]knowledge.VectorMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastNamespace = namespace
	f.lastTopK = topK
	f.lastFilter = filter
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) DeleteOne(ctx context.Context, namespace string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) Ready() bool { return true }

type fakeLearningRepo struct {
	mu      sync.Mutex
	byQuery map[string]*models.LearnedResponse
	byID    map[uint]*models.LearnedResponse
	nextID  uint
	err     error
}

func newFakeLearningRepo() *fakeLearningRepo {
	return &fakeLearningRepo{
		byQuery: make(map[string]*models.LearnedResponse),
		byID:    make(map[uint]*models.LearnedResponse),
		nextID:  1,
	}
}

func (f *fakeLearningRepo) GetByQuery(ctx context.Context, normalizedQuery string) (*models.LearnedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if e, ok := f.byQuery[normalizedQuery]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeLearningRepo) GetByID(ctx context.Context, id uint) (*models.LearnedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if e, ok := f.byID[id]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeLearningRepo) GetByEmbeddingIDs(ctx context.Context, embeddingIDs []string) ([]models.LearnedResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.LearnedResponse
	for _, id := range embeddingIDs {
		for _, e := range f.byID {
			if e.EmbeddingID == id {
				out = append(out, *e)
			}
		}
	}
	return out, nil
}

func (f *fakeLearningRepo) Create(ctx context.Context, entry *models.LearnedResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	entry.ID = f.nextID
	f.nextID++
	copied := *entry
	f.byQuery[entry.Query] = &copied
	f.byID[entry.ID] = &copied
	return nil
}

func (f *fakeLearningRepo) UpdateScore(ctx context.Context, id uint, score float64, usageCount int64, improvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if e, ok := f.byID[id]; ok {
		e.QualityScore = score
		e.UsageCount = usageCount
		e.LastImprovedAt = improvedAt
	}
	return nil
}

func (f *fakeLearningRepo) SetEmbeddingID(ctx context.Context, id uint, embeddingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if e, ok := f.byID[id]; ok {
		e.EmbeddingID = embeddingID
	}
	return nil
}

func (f *fakeLearningRepo) get(id uint) *models.LearnedResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeQueryLogRepo struct {
	mu     sync.Mutex
	logs   []models.QueryLog
	nextID uint
	err    error
}

func newFakeQueryLogRepo() *fakeQueryLogRepo {
	return &fakeQueryLogRepo{nextID: 1}
}

func (f *fakeQueryLogRepo) Insert(ctx context.Context, log *models.QueryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	log.ID = f.nextID
	f.nextID++
	log.CreatedAt = time.Now()
	f.logs = append(f.logs, *log)
	return nil
}

func (f *fakeQueryLogRepo) AttachFeedback(ctx context.Context, id uint, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i := range f.logs {
		if f.logs[i].ID == id {
			r := rating
			f.logs[i].FeedbackRating = &r
			return nil
		}
	}
	return nil
}

func (f *fakeQueryLogRepo) RecentRated(ctx context.Context, since time.Time) ([]models.QueryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.QueryLog
	for _, l := range f.logs {
		if l.FeedbackRating != nil && !l.CreatedAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeChunkStatRepo struct {
	mu       sync.Mutex
	outcomes map[string][2]int64 // chunkID -> [success, fail]
	touched  []string
	failing  []models.ChunkStat
	stale    []models.ChunkStat
	err      error
}

func newFakeChunkStatRepo() *fakeChunkStatRepo {
	return &fakeChunkStatRepo{outcomes: make(map[string][2]int64)}
}

func (f *fakeChunkStatRepo) RecordOutcome(ctx context.Context, chunkID string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	counts := f.outcomes[chunkID]
	if success {
		counts[0]++
	} else {
		counts[1]++
	}
	f.outcomes[chunkID] = counts
	return nil
}

func (f *fakeChunkStatRepo) TouchUsed(ctx context.Context, chunkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.touched = append(f.touched, chunkID)
	return nil
}

func (f *fakeChunkStatRepo) FindFailing(ctx context.Context, ratioMultiplier, minSamples int64) ([]models.ChunkStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.failing, nil
}

func (f *fakeChunkStatRepo) FindStale(ctx context.Context, cutoff time.Time) ([]models.ChunkStat, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stale, nil
}

type fakeChatModel struct {
	answer string
	err    error
	calls  int
	// 最后一次收到的消息，断言提示词内容用
	lastMessages []knowledge.ChatMessage
}

func (f *fakeChatModel) Complete(ctx context.Context, messages []knowledge.ChatMessage, temperature float32, maxTokens int) (string, error) {
	f.calls++
	f.lastMessages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChatModel) Ready() bool { return f.err == nil }
