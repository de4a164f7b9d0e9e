package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/inmohub/backend-go/internal/errors"
	"github.com/inmohub/backend-go/internal/metrics"
	"github.com/inmohub/backend-go/internal/models"
	"github.com/inmohub/backend-go/internal/repository"
	"go.uber.org/zap"
)

// AnswerSource 回答的来源
type AnswerSource string

const (
	SourceCache        AnswerSource = "cache"
	SourceRetrieval    AnswerSource = "retrieval"
	SourceInsufficient AnswerSource = "insufficient"
)

// AnswerOptions 单次提问的参数
type AnswerOptions struct {
	Zone        string
	Development string
	ContentType string
	TopK        int
	Strict      bool
	MinQuality  float64
}

// AnswerOutcome 回答结果。Degraded标记旁路功能（缓存、日志落库）
// 有没有因故障被跳过，回答本身依然是确定性的。
type AnswerOutcome struct {
	Answer     string
	Source     AnswerSource
	Degraded   bool
	Validation *ValidationResult
	Chunks     []Chunk
	QueryLogID uint
}

// AnswerService 问答流水线编排：缓存 → 检索 → 生成 → 校验 → 落库
type AnswerService struct {
	cache      *SemanticCache
	retriever  *Retriever
	generator  *AnswerGenerator
	validator  *CitationValidator
	queryLogs  repository.QueryLogRepository
	chunkStats repository.ChunkStatRepository
	breaker    *CircuitBreaker
	minQuality float64
	topK       int
	logger     *zap.Logger
}

// NewAnswerService 组装流水线
func NewAnswerService(
	cache *SemanticCache,
	retriever *Retriever,
	generator *AnswerGenerator,
	validator *CitationValidator,
	queryLogs repository.QueryLogRepository,
	chunkStats repository.ChunkStatRepository,
	breaker *CircuitBreaker,
	minQuality float64,
	topK int,
	logger *zap.Logger,
) *AnswerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &AnswerService{
		cache:      cache,
		retriever:  retriever,
		generator:  generator,
		validator:  validator,
		queryLogs:  queryLogs,
		chunkStats: chunkStats,
		breaker:    breaker,
		minQuality: minQuality,
		topK:       topK,
		logger:     logger,
	}
}

// Answer 处理一次提问。缓存和落库失败降级继续，
// 模型失败返回统一的用户可见错误。
func (s *AnswerService) Answer(ctx context.Context, question string, opts AnswerOptions) (*AnswerOutcome, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeValidationFailed, "question is empty")
	}
	minQuality := opts.MinQuality
	if minQuality <= 0 {
		minQuality = s.minQuality
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.topK
	}

	outcome := &AnswerOutcome{}

	// 缓存命中直接回答，不再检索也不再校验
	if s.cache != nil {
		if hit, ok := s.cache.Lookup(ctx, question, minQuality); ok {
			outcome.Answer = hit.Entry.Answer
			outcome.Source = SourceCache
			outcome.QueryLogID = s.persistLog(ctx, question, hit.Entry.Answer, outcome)
			metrics.Answer(string(SourceCache))
			return outcome, nil
		}
	}

	chunks, err := s.retriever.Retrieve(ctx, question, opts.Zone, RetrieveOptions{
		Development: opts.Development,
		ContentType: opts.ContentType,
		TopK:        topK,
	})
	if err != nil {
		s.logger.Error("Retrieval failed", zap.String("zone", opts.Zone), zap.Error(err))
		return nil, apperrors.NewExternalError(apperrors.ErrCodeUpstreamUnavailable, apperrors.MsgCannotProcess).WithCause(err)
	}
	outcome.Chunks = chunks

	if len(chunks) == 0 {
		outcome.Answer = InsufficientInfoAnswer
		outcome.Source = SourceInsufficient
		outcome.QueryLogID = s.persistLog(ctx, question, outcome.Answer, outcome)
		metrics.Answer(string(SourceInsufficient))
		return outcome, nil
	}

	draft, err := s.generator.Generate(ctx, question, chunks)
	if err != nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeUpstreamUnavailable, apperrors.MsgCannotProcess).WithCause(err)
	}

	var result *ValidationResult
	if opts.Strict {
		result = s.validator.ValidateStrict(draft, chunks)
	} else {
		result = s.validator.Validate(draft, chunks)
	}
	metrics.Validation(result.IsValid)
	outcome.Validation = result
	outcome.Answer = result.FilteredAnswer
	outcome.Source = SourceRetrieval

	outcome.QueryLogID = s.persistLog(ctx, question, outcome.Answer, outcome)
	metrics.Answer(string(SourceRetrieval))
	return outcome, nil
}

// persistLog 问答日志落库，熔断器保护。失败标记Degraded并返回0。
func (s *AnswerService) persistLog(ctx context.Context, question, answer string, outcome *AnswerOutcome) uint {
	if s.queryLogs == nil {
		return 0
	}
	entry := &models.QueryLog{Query: question, Response: answer}
	err := s.withBreaker(func() error {
		return s.queryLogs.Insert(ctx, entry)
	})
	if err != nil {
		s.logger.Warn("Query log insert skipped", zap.Error(err))
		outcome.Degraded = true
		return 0
	}
	return entry.ID
}

// RecordFeedback 用户评分回写。评分附到问答日志上，
// 被引用的块按评分方向累计成功/失败。
func (s *AnswerService) RecordFeedback(ctx context.Context, queryLogID uint, rating int, citedChunkIDs []string) error {
	if rating < 1 || rating > 5 {
		return apperrors.NewBusinessError(apperrors.ErrCodeValidationFailed, fmt.Sprintf("rating %d out of range [1,5]", rating))
	}

	if queryLogID != 0 {
		err := s.withBreaker(func() error {
			return s.queryLogs.AttachFeedback(ctx, queryLogID, rating)
		})
		if err != nil {
			if errors.Is(err, ErrCircuitOpen) {
				return apperrors.NewExternalError(apperrors.ErrCodeCircuitOpen, apperrors.MsgTemporarilyUnavailable)
			}
			return fmt.Errorf("failed to attach feedback: %w", err)
		}
	}

	for _, chunkID := range citedChunkIDs {
		var err error
		switch {
		case rating >= 4:
			err = s.withBreaker(func() error { return s.chunkStats.RecordOutcome(ctx, chunkID, true) })
		case rating <= 2:
			err = s.withBreaker(func() error { return s.chunkStats.RecordOutcome(ctx, chunkID, false) })
		default:
			err = s.withBreaker(func() error { return s.chunkStats.TouchUsed(ctx, chunkID) })
		}
		if err != nil {
			s.logger.Warn("Chunk stat update failed",
				zap.String("chunk_id", chunkID),
				zap.Int("rating", rating),
				zap.Error(err))
		}
	}
	return nil
}

func (s *AnswerService) withBreaker(fn func() error) error {
	if s.breaker == nil {
		return fn()
	}
	return s.breaker.Do(fn)
}
