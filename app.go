package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"easy_apply_go/config"
	"easy_apply_go/handler"
	"easy_apply_go/repository"
	"easy_apply_go/service"
	"easy_apply_go/worker"
	"easy_apply_go/worker/linkedin"
	"easy_apply_go/worker/scheduler"
	"easy_apply_go/worker/stepstone"
	"easy_apply_go/worker/xing"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Application struct {
	store      *config.Store
	logCloser  io.Closer
	db         *gorm.DB
	jobService *worker.JobService
	scheduler  *scheduler.Scheduler
	server     *http.Server
}

// NewApplication 读取配置并初始化日志
func NewApplication(configPath string) (*Application, error) {
	store, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	closer, err := service.SetupLogging(store.Config().Logging)
	if err != nil {
		return nil, err
	}
	return &Application{store: store, logCloser: closer}, nil
}

// InitServices 初始化所有服务
func (app *Application) InitServices(ctx context.Context) error {
	cfg := app.store.Config()

	db, err := repository.OpenDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("数据库初始化失败: %w", err)
	}
	app.db = db

	var appRepo repository.ApplicationRepository
	if db != nil {
		appRepo = repository.NewApplicationRepository(db)
	}
	applications := service.NewApplicationService(appRepo)
	if err := applications.LoadHistory(); err != nil {
		log.Warnf("加载投递历史失败: %v", err)
	}

	lock, err := service.NewRunLock(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("运行锁初始化失败: %w", err)
	}

	app.jobService = worker.NewJobService(worker.Deps{
		Config:       app.store,
		Registry:     worker.NewRegistry(xing.New(), stepstone.New(), linkedin.New()),
		Cookies:      service.NewCookieService(repository.NewCookieRepository(cfg.Paths.CookiesDir)),
		Applications: applications,
		Resume:       repository.NewResumeRepository(cfg.Paths.Resume),
		Lock:         lock,
	})
	app.scheduler = scheduler.New(app.jobService, cfg.Automation)
	log.Info("✓ 所有服务初始化完成")
	return nil
}

// Serve 启动 HTTP 控制页，直到 ctx 结束
func (app *Application) Serve(ctx context.Context) error {
	h := handler.NewHandler(ctx, app.jobService, app.scheduler, app.store)
	app.server = &http.Server{
		Addr:              app.store.Config().Server.Addr,
		Handler:           handler.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("控制页已启动: http://%s", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("接收到退出信号，开始优雅关闭...")
		return nil
	}
}

// Stop 停止应用程序
func (app *Application) Stop() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	if app.jobService != nil {
		for _, p := range app.jobService.Platforms() {
			_ = app.jobService.Stop(p)
		}
	}
	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.server.Shutdown(ctx); err != nil {
			log.Warnf("关闭 HTTP 服务超时: %v", err)
		}
	}
	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	log.Info("✓ 应用程序已安全停止")
	if app.logCloser != nil {
		app.logCloser.Close()
	}
}
