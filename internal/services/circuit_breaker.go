package services

import (
	"sync"
	"time"

	apperrors "github.com/inmohub/backend-go/internal/errors"
	"github.com/inmohub/backend-go/internal/metrics"
	"go.uber.org/zap"
)

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String 返回状态字符串
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断器打开时的拒绝错误
var ErrCircuitOpen = apperrors.NewExternalError(apperrors.ErrCodeCircuitOpen, "circuit breaker is open")

// CircuitBreaker 保护关系库访问的熔断器。
// 只有连接类故障计入失败阈值；应用级错误（约束冲突、坏查询）
// 既不计入也不清零，避免业务bug触发为基础设施故障准备的保护。
type CircuitBreaker struct {
	name string

	// 配置
	failureThreshold int           // 连续连接类失败阈值
	successThreshold int           // 半开状态需要的连续成功数
	openTimeout      time.Duration // 打开后的冷却时间
	isCounted        func(error) bool
	now              func() time.Time
	logger           *zap.Logger

	// 状态，单锁保护，保证OPEN->HALF_OPEN只被一个调用者翻转
	mu           sync.Mutex
	state        CircuitBreakerState
	failureCount int
	successCount int
	lastFailure  time.Time
	probing      bool // 半开状态下是否已有探测请求在途
}

// NewCircuitBreaker 创建熔断器。
// 默认：连续5次连接类失败打开，30秒后放行探测，2次连续成功关闭。
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, openTimeout time.Duration, logger *zap.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		isCounted:        apperrors.IsConnectionError,
		now:              time.Now,
		logger:           logger,
		state:            StateClosed,
	}
}

// Do 执行一次受保护的调用。熔断打开时立即返回ErrCircuitOpen。
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.admit() {
		metrics.BreakerRejection()
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

// admit 判断是否放行本次调用
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.openTimeout {
			cb.transition(StateHalfOpen)
			cb.successCount = 0
			cb.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		// 半开时一次只放一个探测
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// record 记录调用结果并推进状态机
func (cb *CircuitBreaker) record(err error) {
	counted := err != nil && cb.isCounted(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probing = false
	}

	if counted {
		cb.lastFailure = cb.now()
		switch cb.state {
		case StateHalfOpen:
			// 探测失败，立即重新打开
			cb.transition(StateOpen)
			cb.successCount = 0
		case StateClosed:
			cb.failureCount++
			if cb.failureCount >= cb.failureThreshold {
				cb.transition(StateOpen)
			}
		}
		return
	}

	// 成功，或不计入熔断的应用级错误（服务可达）。
	// 应用级错误不推进半开计数，也不清零关闭态的失败计数。
	if err != nil {
		return
	}
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.transition(StateClosed)
			cb.failureCount = 0
			cb.successCount = 0
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

// transition 切换状态并上报指标，调用方必须持锁
func (cb *CircuitBreaker) transition(next CircuitBreakerState) {
	if cb.state == next {
		return
	}
	cb.logger.Warn("Circuit breaker state changed",
		zap.String("breaker", cb.name),
		zap.String("from", cb.state.String()),
		zap.String("to", next.String()))
	cb.state = next
	metrics.BreakerState(int(next))
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset 管理操作：强制回到关闭状态并清零计数
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.probing = false
}

// Stats 获取统计信息
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return map[string]interface{}{
		"name":              cb.name,
		"state":             cb.state.String(),
		"failure_count":     cb.failureCount,
		"success_count":     cb.successCount,
		"failure_threshold": cb.failureThreshold,
		"success_threshold": cb.successThreshold,
		"open_timeout":      cb.openTimeout.String(),
		"last_failure_time": cb.lastFailure,
	}
}
