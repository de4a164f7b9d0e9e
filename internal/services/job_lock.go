package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// JobLock 基于Redis SETNX的批处理互斥锁。
// client为nil时直接放行，单实例部署不需要Redis。
type JobLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewJobLock 创建锁。ttl兜住进程异常退出不释放的情况。
func NewJobLock(client *redis.Client, ttl time.Duration, logger *zap.Logger) *JobLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JobLock{client: client, ttl: ttl, logger: logger}
}

// Acquire 尝试拿锁。拿到返回释放函数和true，
// 锁被别的实例持有返回false。
func (l *JobLock) Acquire(ctx context.Context, name string) (release func(), ok bool, err error) {
	if l.client == nil {
		l.logger.Warn("Job lock disabled: no redis client", zap.String("job", name))
		return func() {}, true, nil
	}

	key := "joblock:" + name
	ok, err = l.client.SetNX(ctx, key, time.Now().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		if delErr := l.client.Del(context.Background(), key).Err(); delErr != nil {
			l.logger.Warn("Job lock release failed",
				zap.String("job", name),
				zap.Error(delErr))
		}
	}
	return release, true, nil
}
