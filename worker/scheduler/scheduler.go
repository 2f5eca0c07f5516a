// Package scheduler runs apply for every logged-in platform on a cron
// schedule while automation is switched on.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"easy_apply_go/config"
	"easy_apply_go/worker"
	"easy_apply_go/worker/apply"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// ErrAlreadyRunning 自动投递已经开启
var ErrAlreadyRunning = errors.New("automation already running")

// Runner is the part of worker.JobService the scheduler drives.
type Runner interface {
	Platforms() []string
	HasSession(platform string) bool
	Apply(ctx context.Context, platform string, progress worker.ProgressFunc) (*apply.RunResult, error)
}

// Scheduler wraps robfig/cron. Each tick runs one cycle over the target
// platforms, strictly one after another.
type Scheduler struct {
	runner    Runner
	spec      string
	platforms []string

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycle sync.Mutex
}

// New 创建调度器，cfg.Platforms 为空时投递所有已注册平台
func New(runner Runner, cfg config.AutomationConfig) *Scheduler {
	return &Scheduler{
		runner:    runner,
		spec:      cfg.Schedule,
		platforms: append([]string(nil), cfg.Platforms...),
	}
}

// Start 注册定时任务并立即执行一轮
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrAlreadyRunning
	}

	c := cron.New(cron.WithLogger(cron.PrintfLogger(log.StandardLogger())))
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.spec, func() { s.runCycle(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("注册定时任务失败 %q: %w", s.spec, err)
	}
	c.Start()
	s.cron, s.cancel = c, cancel
	log.WithField("spec", s.spec).Info("自动投递已开启")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(runCtx)
	}()
	return nil
}

// Stop 关闭定时任务并取消正在进行的投递，等待其退出
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	log.Info("自动投递已关闭")
}

// Running 自动投递是否开启
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) targets() []string {
	if len(s.platforms) > 0 {
		return s.platforms
	}
	return s.runner.Platforms()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.cycle.TryLock() {
		log.Warn("上一轮自动投递尚未结束，跳过本次")
		return
	}
	defer s.cycle.Unlock()

	for _, platform := range s.targets() {
		if ctx.Err() != nil {
			return
		}
		entry := log.WithField("platform", platform)
		if !s.runner.HasSession(platform) {
			entry.Info("未登录，跳过自动投递")
			continue
		}
		res, err := s.runner.Apply(ctx, platform, nil)
		if err != nil {
			entry.Errorf("自动投递失败: %v", err)
			continue
		}
		entry.Infof("自动投递完成，成功%d个", len(res.Records))
	}
}
