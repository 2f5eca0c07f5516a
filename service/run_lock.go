package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"easy_apply_go/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ErrLockHeld 该平台已有投递任务在运行
var ErrLockHeld = errors.New("platform run lock is held")

// RunLock 按平台互斥，同一平台的两次投递不能同时操作同一份 Cookie 文件
type RunLock interface {
	// Acquire returns ErrLockHeld immediately when the platform is busy.
	Acquire(ctx context.Context, platform string) (release func(), err error)
}

// NewRunLock 配置了 redis 时使用跨进程锁，否则使用进程内锁
func NewRunLock(ctx context.Context, cfg config.RedisConfig) (RunLock, error) {
	if cfg.URL == "" {
		return NewMemoryRunLock(), nil
	}
	client, err := NewRedisClient(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return NewRedisRunLock(client, cfg.LockTTL), nil
}

type memoryRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryRunLock() RunLock {
	return &memoryRunLock{held: make(map[string]bool)}
}

func (l *memoryRunLock) Acquire(_ context.Context, platform string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[platform] {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, platform)
	}
	l.held[platform] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, platform)
			l.mu.Unlock()
		})
	}, nil
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// 仍由自己持有时才续期
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type redisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLock lease-based lock. 持有期间每 ttl/3 续期一次，
// ttl 只限制崩溃进程遗留的锁存活多久。
func NewRedisRunLock(client *redis.Client, ttl time.Duration) RunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisRunLock{client: client, ttl: ttl}
}

func (l *redisRunLock) Acquire(ctx context.Context, platform string) (func(), error) {
	k := "easy_apply:run_lock:" + platform
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取运行锁失败: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, platform)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		renewLease(stop, l.ttl/3, func() (bool, error) {
			rctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			defer cancel()
			n, err := extendScript.Run(rctx, l.client, []string{k}, token, l.ttl.Milliseconds()).Int()
			return n == 1, err
		})
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := releaseScript.Run(context.Background(), l.client, []string{k}, token).Err(); err != nil {
				log.Warnf("释放运行锁失败: %v", err)
			}
		})
	}, nil
}

// renewLease 每隔 every 调用 extend，直到 stop 关闭或锁已丢失。
// 单次续期出错只记录日志，下一轮再试。
func renewLease(stop <-chan struct{}, every time.Duration, extend func() (bool, error)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		held, err := extend()
		if err != nil {
			log.Warnf("运行锁续期失败: %v", err)
			continue
		}
		if !held {
			log.Warn("运行锁已被释放或过期，停止续期")
			return
		}
	}
}
