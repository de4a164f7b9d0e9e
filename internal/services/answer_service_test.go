package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inmohub/backend-go/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	embedder  *fakeEmbedder
	cacheIdx  *fakeIndex
	invIdx    *fakeIndex
	learning  *fakeLearningRepo
	queryLogs *fakeQueryLogRepo
	stats     *fakeChunkStatRepo
	chat      *fakeChatModel
	svc       *AnswerService
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		embedder:  &fakeEmbedder{vec: []float32{1, 0}},
		cacheIdx:  newFakeIndex(),
		invIdx:    newFakeIndex(),
		learning:  newFakeLearningRepo(),
		queryLogs: newFakeQueryLogRepo(),
		stats:     newFakeChunkStatRepo(),
		chat:      &fakeChatModel{answer: "El precio es $500,000 MXN [1]."},
	}
	cache := NewSemanticCache(f.embedder, f.cacheIdx, f.learning, nil, "learned_responses", 0.80, nil)
	retriever := NewRetriever(f.embedder, f.invIdx, "inventory", nil)
	generator := NewAnswerGenerator(f.chat, 0.2, 512, 10*time.Second, nil)
	validator := NewCitationValidator(nil, nil)
	f.svc = NewAnswerService(cache, retriever, generator, validator,
		f.queryLogs, f.stats, nil, 0.7, 5, nil)
	return f
}

func (f *pipelineFixture) seedInventory() {
	f.invIdx.matches = []knowledge.VectorMatch{
		{ID: "c1", Score: 0.9, Metadata: map[string]interface{}{
			"text": "Lote 12: $500,000 MXN",
		}},
	}
}

func TestAnswerFromRetrieval(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()

	outcome, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum"})

	require.NoError(t, err)
	assert.Equal(t, SourceRetrieval, outcome.Source)
	assert.Equal(t, "El precio es $500,000 MXN [1].", outcome.Answer)
	assert.False(t, outcome.Degraded)
	require.NotNil(t, outcome.Validation)
	assert.True(t, outcome.Validation.IsValid)
	assert.NotZero(t, outcome.QueryLogID)
	require.Len(t, f.queryLogs.logs, 1)
}

func TestAnswerFromCacheSkipsPipeline(t *testing.T) {
	f := newPipeline(t)
	entry := seedEntry(f.learning, "¿cuánto cuesta el lote 12?", 0.9)
	f.cacheIdx.matches = []knowledge.VectorMatch{{ID: entry.EmbeddingID, Score: 0.95}}

	outcome, err := f.svc.Answer(context.Background(), "¿Cuánto cuesta el Lote 12?", AnswerOptions{Zone: "Tulum"})

	require.NoError(t, err)
	assert.Equal(t, SourceCache, outcome.Source)
	assert.Equal(t, entry.Answer, outcome.Answer)
	assert.Zero(t, f.chat.calls)
	assert.Nil(t, outcome.Validation)
}

func TestAnswerInsufficientWhenNothingRetrieved(t *testing.T) {
	f := newPipeline(t)

	outcome, err := f.svc.Answer(context.Background(), "¿tienen departamentos en Mérida?", AnswerOptions{Zone: "Mérida"})

	require.NoError(t, err)
	assert.Equal(t, SourceInsufficient, outcome.Source)
	assert.Equal(t, InsufficientInfoAnswer, outcome.Answer)
	assert.Zero(t, f.chat.calls)
}

func TestAnswerModelFailureIsHardError(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()
	f.chat.err = errors.New("rate limited")

	_, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum"})
	assert.Error(t, err)
}

func TestAnswerDegradedWhenLogInsertFails(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()
	f.queryLogs.err = errConnRefused

	outcome, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum"})

	require.NoError(t, err)
	assert.True(t, outcome.Degraded)
	assert.Zero(t, outcome.QueryLogID)
	assert.Equal(t, "El precio es $500,000 MXN [1].", outcome.Answer)
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	f := newPipeline(t)

	_, err := f.svc.Answer(context.Background(), "   ", AnswerOptions{Zone: "Tulum"})
	assert.Error(t, err)
}

func TestAnswerStrictModeFiltersAnswer(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()
	f.chat.answer = "El lote 12 tiene precio de $500,000 MXN [1]. " +
		"La zona cuenta con excelente conectividad aérea internacional garantizada."

	outcome, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum", Strict: true})

	require.NoError(t, err)
	assert.Contains(t, outcome.Answer, "$500,000")
	assert.NotContains(t, outcome.Answer, "conectividad")
}

func TestRecordFeedbackUpdatesChunkStats(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()
	outcome, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum"})
	require.NoError(t, err)

	require.NoError(t, f.svc.RecordFeedback(context.Background(), outcome.QueryLogID, 5, []string{"c1"}))
	assert.Equal(t, [2]int64{1, 0}, f.stats.outcomes["c1"])

	require.NoError(t, f.svc.RecordFeedback(context.Background(), outcome.QueryLogID, 1, []string{"c1"}))
	assert.Equal(t, [2]int64{1, 1}, f.stats.outcomes["c1"])

	// 中性评分只刷新last_used
	require.NoError(t, f.svc.RecordFeedback(context.Background(), outcome.QueryLogID, 3, []string{"c1"}))
	assert.Equal(t, [2]int64{1, 1}, f.stats.outcomes["c1"])
	assert.Equal(t, []string{"c1"}, f.stats.touched)

	rated := f.queryLogs.logs[0]
	require.NotNil(t, rated.FeedbackRating)
	assert.Equal(t, 3, *rated.FeedbackRating)
}

func TestRecordFeedbackRejectsOutOfRangeRating(t *testing.T) {
	f := newPipeline(t)

	assert.Error(t, f.svc.RecordFeedback(context.Background(), 1, 0, nil))
	assert.Error(t, f.svc.RecordFeedback(context.Background(), 1, 6, nil))
}

func TestAnswerBreakerOpenStillAnswers(t *testing.T) {
	f := newPipeline(t)
	f.seedInventory()

	breaker := NewCircuitBreaker("test", 5, 2, 30*time.Second, nil)
	for i := 0; i < 5; i++ {
		_ = breaker.Do(func() error { return errConnRefused })
	}
	f.svc.breaker = breaker

	outcome, err := f.svc.Answer(context.Background(), "¿cuánto cuesta el lote 12?", AnswerOptions{Zone: "Tulum"})

	require.NoError(t, err)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, "El precio es $500,000 MXN [1].", outcome.Answer)
}
