// Package worker controls apply and login runs per platform: one run at a
// time per platform, a cooperative stop signal and progress callbacks.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/repository"
	"easy_apply_go/service"
	"easy_apply_go/utils"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/browser"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrRunInProgress 该平台已有任务在运行
	ErrRunInProgress = errors.New("run already in progress")
	// ErrUnknownPlatform 未注册的平台
	ErrUnknownPlatform = errors.New("unknown platform")
)

// JobProgressMessage 任务进度消息
type JobProgressMessage struct {
	Platform  string `json:"platform"`
	RunID     string `json:"run_id,omitempty"`
	Type      string `json:"type"` // info, warning, error, success
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ProgressFunc 进度回调，可以为 nil
type ProgressFunc func(message JobProgressMessage)

// Registry 平台注册表
type Registry struct {
	platforms map[string]apply.Platform
	names     []string
}

// NewRegistry 按传入顺序注册平台
func NewRegistry(platforms ...apply.Platform) *Registry {
	r := &Registry{platforms: make(map[string]apply.Platform, len(platforms))}
	for _, p := range platforms {
		if _, ok := r.platforms[p.Name()]; ok {
			continue
		}
		r.platforms[p.Name()] = p
		r.names = append(r.names, p.Name())
	}
	return r
}

// Get 按名称查找平台
func (r *Registry) Get(name string) (apply.Platform, error) {
	p, ok := r.platforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Names 已注册的平台名称
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// RunSummary 最近一次运行的摘要
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Listings   int       `json:"listings"`
	Submitted  int       `json:"submitted"`
	Stopped    bool      `json:"stopped"`
	Error      string    `json:"error,omitempty"`
}

// PlatformStatus 平台状态
type PlatformStatus struct {
	Platform string      `json:"platform"`
	Running  bool        `json:"running"`
	LoggedIn bool        `json:"logged_in"`
	LastRun  *RunSummary `json:"last_run,omitempty"`
}

// Deps JobService 的依赖
type Deps struct {
	Config       *config.Store
	Registry     *Registry
	Cookies      *service.CookieService
	Applications *service.ApplicationService
	Resume       repository.ResumeRepository
	Lock         service.RunLock
	// Browser defaults to browser.New.
	Browser browser.Factory
}

// JobService 投递任务服务
type JobService struct {
	deps Deps

	statusMutex sync.RWMutex
	running     map[string]bool
	shouldStop  map[string]bool
	lastRun     map[string]*RunSummary
}

// NewJobService 创建任务服务
func NewJobService(deps Deps) *JobService {
	if deps.Browser == nil {
		deps.Browser = browser.New
	}
	if deps.Lock == nil {
		deps.Lock = service.NewMemoryRunLock()
	}
	return &JobService{
		deps:       deps,
		running:    make(map[string]bool),
		shouldStop: make(map[string]bool),
		lastRun:    make(map[string]*RunSummary),
	}
}

func (s *JobService) emitter(platform, runID string, progress ProgressFunc) func(typ, msg string) {
	return func(typ, msg string) {
		if progress == nil {
			return
		}
		progress(JobProgressMessage{
			Platform:  platform,
			RunID:     runID,
			Type:      typ,
			Message:   msg,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// begin 标记平台为运行中；已在运行时返回 ErrRunInProgress
func (s *JobService) begin(platform string) (func(), error) {
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()
	if s.running[platform] {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, platform)
	}
	s.running[platform] = true
	s.shouldStop[platform] = false
	return func() {
		s.statusMutex.Lock()
		defer s.statusMutex.Unlock()
		s.running[platform] = false
		s.shouldStop[platform] = false
	}, nil
}

// prepare 检查平台、标记运行、获取运行锁，返回的 cleanup 必须调用
func (s *JobService) prepare(ctx context.Context, platform string, emit func(typ, msg string)) (apply.Platform, func(), error) {
	p, err := s.deps.Registry.Get(platform)
	if err != nil {
		return nil, nil, err
	}
	end, err := s.begin(platform)
	if err != nil {
		emit("warning", "任务已在运行中")
		return nil, nil, err
	}
	release, err := s.deps.Lock.Acquire(ctx, platform)
	if err != nil {
		end()
		if errors.Is(err, service.ErrLockHeld) {
			err = fmt.Errorf("%w: %v", ErrRunInProgress, err)
		}
		emit("warning", "获取运行锁失败: "+err.Error())
		return nil, nil, err
	}
	return p, func() {
		release()
		end()
	}, nil
}

func (s *JobService) openBrowser(ctx context.Context, platform string, cfg config.BrowserConfig, headless bool) (browser.Driver, error) {
	opts := browser.Options{
		Engine:          cfg.Engine,
		Headless:        headless,
		WindowWidth:     cfg.WindowWidth,
		WindowHeight:    cfg.WindowHeight,
		ActionTimeoutMs: float64(cfg.ActionTimeout.Milliseconds()),
		NavigationMs:    float64(cfg.NavigationWait.Milliseconds()),
	}
	if cfg.UserDataDir != "" {
		opts.UserDataDir = filepath.Join(cfg.UserDataDir, platform)
	}
	driver, err := s.deps.Browser(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	return driver, nil
}

func closeDriver(d browser.Driver, entry *log.Entry) {
	if err := d.Close(); err != nil && !errors.Is(err, browser.ErrBrowserClosed) {
		entry.Warnf("关闭浏览器失败: %v", err)
	}
}

// Apply 执行一次投递。浏览器在所有路径上都会关闭
func (s *JobService) Apply(ctx context.Context, platform string, progress ProgressFunc) (*apply.RunResult, error) {
	runID := uuid.NewString()
	emit := s.emitter(platform, runID, progress)
	entry := log.WithFields(log.Fields{"platform": platform, "run_id": runID})

	p, cleanup, err := s.prepare(ctx, platform, emit)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cfg := s.deps.Config.Config()
	profile, err := s.deps.Resume.Load()
	if err != nil {
		emit("error", "简历加载失败: "+err.Error())
		s.recordRun(platform, runID, nil, err)
		return nil, err
	}

	driver, err := s.openBrowser(ctx, platform, cfg.Browser, cfg.Browser.Headless)
	if err != nil {
		emit("error", err.Error())
		s.recordRun(platform, runID, nil, err)
		return nil, err
	}
	defer closeDriver(driver, entry)

	sess := apply.NewSession(driver, cfg.JobPreferences, cfg.Secrets, cfg.Timeouts, nil)
	wf := apply.New(p, sess, s.deps.Cookies, s.deps.Applications, profile, apply.Options{
		RunID:      runID,
		ShouldStop: func() bool { return s.ShouldStop(platform) },
		OnProgress: func(msg string) { emit("info", msg) },
	})

	emit("info", "开始投递任务...")
	res, err := wf.Run(ctx)
	s.recordRun(platform, runID, res, err)
	if err != nil {
		emit("error", "投递中断: "+err.Error())
		return res, err
	}
	emit("success", fmt.Sprintf("投递任务完成，成功投递%d个职位，耗时%s",
		len(res.Records), utils.FormatDuration(res.StartedAt, res.FinishedAt)))
	return res, nil
}

// Login 打开有界面的浏览器完成登录并保存 Cookie；已有有效会话时直接返回
func (s *JobService) Login(ctx context.Context, platform string, progress ProgressFunc) error {
	runID := uuid.NewString()
	emit := s.emitter(platform, runID, progress)
	entry := log.WithFields(log.Fields{"platform": platform, "run_id": runID})

	p, cleanup, err := s.prepare(ctx, platform, emit)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := s.deps.Config.Config()
	driver, err := s.openBrowser(ctx, platform, cfg.Browser, false)
	if err != nil {
		emit("error", err.Error())
		return err
	}
	defer closeDriver(driver, entry)

	sess := apply.NewSession(driver, cfg.JobPreferences, cfg.Secrets, cfg.Timeouts, nil)
	wf := apply.New(p, sess, s.deps.Cookies, s.deps.Applications, model.ResumeProfile{}, apply.Options{
		RunID:      runID,
		OnProgress: func(msg string) { emit("info", msg) },
	})
	if err := wf.EnsureSession(ctx); err != nil {
		emit("error", "登录失败: "+err.Error())
		return err
	}
	emit("success", "登录成功，Cookie已保存")
	return nil
}

func (s *JobService) recordRun(platform, runID string, res *apply.RunResult, err error) {
	summary := &RunSummary{RunID: runID, FinishedAt: time.Now()}
	if res != nil {
		summary.StartedAt = res.StartedAt
		summary.FinishedAt = res.FinishedAt
		summary.Listings = len(res.Listings)
		summary.Submitted = len(res.Records)
		summary.Stopped = res.Stopped
	}
	if err != nil {
		summary.Error = err.Error()
	}
	s.statusMutex.Lock()
	s.lastRun[platform] = summary
	s.statusMutex.Unlock()
}

// Stop 请求停止投递，在处理下一个职位前生效
func (s *JobService) Stop(platform string) error {
	if _, err := s.deps.Registry.Get(platform); err != nil {
		return err
	}
	s.statusMutex.Lock()
	defer s.statusMutex.Unlock()
	if s.running[platform] {
		s.shouldStop[platform] = true
		log.WithField("platform", platform).Info("收到停止投递任务的请求")
	}
	return nil
}

// ShouldStop 供投递流程在职位之间检查
func (s *JobService) ShouldStop(platform string) bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.shouldStop[platform]
}

// IsRunning 检查平台是否正在运行
func (s *JobService) IsRunning(platform string) bool {
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	return s.running[platform]
}

// HasSession 是否保存了该平台的 Cookie
func (s *JobService) HasSession(platform string) bool {
	return s.deps.Cookies.HasSession(platform)
}

// Logout 删除已保存的 Cookie
func (s *JobService) Logout(platform string) error {
	if _, err := s.deps.Registry.Get(platform); err != nil {
		return err
	}
	return s.deps.Cookies.Delete(platform)
}

// Platforms 已注册的平台
func (s *JobService) Platforms() []string {
	return s.deps.Registry.Names()
}

// Applications 本进程内的投递记录
func (s *JobService) Applications() []model.ApplicationRecord {
	return s.deps.Applications.All()
}

// Status 所有平台的状态
func (s *JobService) Status() []PlatformStatus {
	names := s.deps.Registry.Names()
	out := make([]PlatformStatus, 0, len(names))
	s.statusMutex.RLock()
	defer s.statusMutex.RUnlock()
	for _, name := range names {
		st := PlatformStatus{
			Platform: name,
			Running:  s.running[name],
			LoggedIn: s.deps.Cookies.HasSession(name),
		}
		if last := s.lastRun[name]; last != nil {
			cp := *last
			st.LastRun = &cp
		}
		out = append(out, st)
	}
	return out
}
