package database

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HealthChecker 数据库健康检查器。
// 批处理任务启动前用它确认数据库可达，避免跑到一半才失败。
type HealthChecker struct {
	db         *sql.DB
	logger     *logrus.Logger
	retryDelay time.Duration
	maxRetries int

	mu        sync.RWMutex
	isHealthy bool
	lastCheck time.Time
	lastError error
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(db *sql.DB, logger *logrus.Logger) *HealthChecker {
	if logger == nil {
		logger = logrus.New()
	}
	return &HealthChecker{
		db:         db,
		logger:     logger,
		retryDelay: 5 * time.Second,
		maxRetries: 3,
	}
}

// SetRetryConfig 设置重试配置
func (hc *HealthChecker) SetRetryConfig(delay time.Duration, maxRetries int) {
	hc.retryDelay = delay
	hc.maxRetries = maxRetries
}

// Check 执行单次健康检查
func (hc *HealthChecker) Check(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := hc.db.PingContext(ctx)
	responseTime := time.Since(start)

	hc.mu.Lock()
	hc.lastCheck = time.Now()
	hc.lastError = err
	hc.isHealthy = err == nil
	hc.mu.Unlock()

	if err != nil {
		hc.logger.WithFields(logrus.Fields{
			"error":         err.Error(),
			"response_time": responseTime,
		}).Warn("Database health check failed")
		return err
	}

	hc.logger.WithField("response_time", responseTime).Debug("Database health check passed")
	return nil
}

// CheckWithRetry 带退避重试的检查，全部失败时返回最后一次错误
func (hc *HealthChecker) CheckWithRetry(ctx context.Context) error {
	err := hc.Check(ctx)
	if err == nil {
		return nil
	}

	for i := 0; i < hc.maxRetries; i++ {
		hc.logger.WithField("attempt", i+1).Info("Retrying database connection")
		select {
		case <-time.After(hc.retryDelay * time.Duration(i+1)):
			if err = hc.Check(ctx); err == nil {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	hc.logger.Error("Database connection failed after all retries")
	return err
}

// IsHealthy 获取当前健康状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// GetHealthResult 获取健康检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := HealthCheckResult{
		Healthy:   hc.isHealthy,
		LastCheck: hc.lastCheck,
	}
	if hc.lastError != nil {
		result.LastError = hc.lastError.Error()
	}
	return result
}
