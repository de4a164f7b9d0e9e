package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 流水线运行指标。promauto注册到默认Registry，
// 由宿主应用通过promhttp暴露。
var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_cache_lookups_total",
			Help: "Semantic cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	answers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_answers_total",
			Help: "Answers produced by source",
		},
		[]string{"source"}, // cache, retrieval, insufficient
	)

	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_validations_total",
			Help: "Citation validation outcomes",
		},
		[]string{"result"}, // valid, invalid
	)

	breakerRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_breaker_rejections_total",
			Help: "Store calls rejected by the open circuit breaker",
		},
	)

	breakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)
)

// CacheLookup 记录一次语义缓存查询
func CacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// Answer 记录一次回答及其来源
func Answer(source string) {
	answers.WithLabelValues(source).Inc()
}

// Validation 记录一次引用校验结果
func Validation(valid bool) {
	if valid {
		validations.WithLabelValues("valid").Inc()
	} else {
		validations.WithLabelValues("invalid").Inc()
	}
}

// BreakerRejection 记录一次熔断拒绝
func BreakerRejection() {
	breakerRejections.Inc()
}

// BreakerState 上报熔断器当前状态
func BreakerState(state int) {
	breakerState.Set(float64(state))
}
