package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"skill-swap/backend/pkg/redis"
	"skill-swap/backend/pkg/response"
)

// RateLimit 速率限制中间件
// 配置 Redis 时使用跨实例的滑动窗口；rdb 为 nil 或 Redis 出错时
// 降级为进程内的令牌桶（按 IP + 路由）
// 本地令牌桶由后台协程定期清理空闲 key，ctx 取消时协程退出
func RateLimit(ctx context.Context, rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	local := newLocalLimiter(limit, window)
	if limit > 0 {
		local.startCleanup(ctx, local.idle)
	}

	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())
		allowed := true
		if rdb != nil {
			ok, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
			if err != nil {
				logger.Warn("Redis 限流失败，降级为本地限流", zap.Error(err))
				allowed = local.allow(key)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}

// localLimiter 进程内令牌桶，窗口内平均放行 limit 次，允许 limit 次突发
// 超过 idle 未访问的 key 会被清理；此时桶早已回满，删除不改变限流结果
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// 窗口未配置时的空闲阈值
const defaultLimiterIdle = time.Minute

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	l := &localLimiter{
		limiters: make(map[string]*limiterEntry),
		burst:    limit,
		idle:     defaultLimiterIdle,
		now:      time.Now,
	}
	if limit > 0 && window > 0 {
		l.every = rate.Every(window / time.Duration(limit))
		l.idle = window
	}
	return l
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// cleanup 删除超过 idle 未访问的 key，返回删除数量
func (l *localLimiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for key, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

func (l *localLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// startCleanup 按 interval 周期清理，ctx 取消后停止 ticker
func (l *localLimiter) startCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.cleanup()
			}
		}
	}()
}
