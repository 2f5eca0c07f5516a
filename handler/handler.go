// Package handler 提供本地 HTTP 控制页：状态、登录、投递、偏好设置与自动投递开关
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/worker"
	"easy_apply_go/worker/apply"
	"easy_apply_go/worker/scheduler"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Jobs is the part of worker.JobService the handlers use.
type Jobs interface {
	Platforms() []string
	Status() []worker.PlatformStatus
	Applications() []model.ApplicationRecord
	Login(ctx context.Context, platform string, progress worker.ProgressFunc) error
	Apply(ctx context.Context, platform string, progress worker.ProgressFunc) (*apply.RunResult, error)
	Stop(platform string) error
	Logout(platform string) error
}

// Automation 定时投递开关
type Automation interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Preferences 偏好设置的读写，由 *config.Store 实现
type Preferences interface {
	Preferences() config.JobPreferences
	SavePreferences(p config.JobPreferences) error
}

// preferencesForm 同时接受 JSON 与表单提交
type preferencesForm struct {
	JobTitle           string   `json:"job_title" form:"job_title"`
	Location           string   `json:"location" form:"location"`
	Radius             int      `json:"radius" form:"radius"`
	XingRemoteOption   []string `json:"xing_remote_option" form:"xing_remote_option"`
	XingEmploymentType []string `json:"xing_employment_type" form:"xing_employment_type"`
	XingCareerLevel    []string `json:"xing_career_level" form:"xing_career_level"`
	StepStoneWFH       string   `json:"stepstone_wfh" form:"stepstone_wfh"`
	LinkedInRemote     string   `json:"linkedin_remote" form:"linkedin_remote"`
	TitleBlacklist     []string `json:"title_blacklist" form:"title_blacklist"`
}

// merge 未提交的开关字段沿用默认值 "0"，黑名单未提交时保留原值
func (f preferencesForm) merge(current config.JobPreferences) config.JobPreferences {
	p := config.JobPreferences{
		JobTitle:           f.JobTitle,
		Location:           f.Location,
		Radius:             f.Radius,
		XingRemoteOption:   f.XingRemoteOption,
		XingEmploymentType: f.XingEmploymentType,
		XingCareerLevel:    f.XingCareerLevel,
		StepStoneWFH:       f.StepStoneWFH,
		LinkedInRemote:     f.LinkedInRemote,
		TitleBlacklist:     f.TitleBlacklist,
	}
	if p.StepStoneWFH == "" {
		p.StepStoneWFH = "0"
	}
	if p.LinkedInRemote == "" {
		p.LinkedInRemote = "0"
	}
	if f.TitleBlacklist == nil {
		p.TitleBlacklist = current.TitleBlacklist
	}
	return p
}

// Handler 控制页处理器
type Handler struct {
	Jobs        Jobs
	Automation  Automation
	Preferences Preferences
	// BaseCtx bounds runs started by automation; runs triggered by a request
	// use the request context.
	BaseCtx context.Context
}

// NewHandler 创建处理器
func NewHandler(ctx context.Context, jobs Jobs, automation Automation, prefs Preferences) *Handler {
	return &Handler{Jobs: jobs, Automation: automation, Preferences: prefs, BaseCtx: ctx}
}

// Register 注册路由
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/", h.Home)
	r.GET("/login/:platform", h.Login)
	r.GET("/apply_jobs/:platform", h.ApplyJobs)
	r.GET("/preferences", h.GetPreferences)
	r.POST("/preferences", h.SavePreferences)
	r.POST("/save_preferences", h.SavePreferences)
	r.GET("/start_automation", h.StartAutomation)
	r.GET("/stop_automation", h.StopAutomation)
	r.POST("/stop/:platform", h.StopPlatform)
	r.DELETE("/session/:platform", h.Logout)
}

// NewRouter 创建 gin 引擎并注册路由
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	h.Register(r)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("http request")
	}
}

func progressLogger() worker.ProgressFunc {
	return func(m worker.JobProgressMessage) {
		log.WithFields(log.Fields{"platform": m.Platform, "run_id": m.RunID}).Infof("[%s] %s", m.Type, m.Message)
	}
}

// Home GET / 返回整体状态
func (h *Handler) Home(c *gin.Context) {
	status := h.Jobs.Status()
	loggedIn := make(map[string]bool, len(status))
	for _, st := range status {
		loggedIn[st.Platform] = st.LoggedIn
	}
	apps := h.Jobs.Applications()
	if apps == nil {
		apps = []model.ApplicationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"platforms":          h.Jobs.Platforms(),
		"applications":       apps,
		"logged_in":          loggedIn,
		"status":             status,
		"preferences":        h.Preferences.Preferences(),
		"automation_running": h.Automation.Running(),
	})
}

// Login GET /login/:platform 打开浏览器登录，成功后回到首页
func (h *Handler) Login(c *gin.Context) {
	platform := c.Param("platform")
	err := h.Jobs.Login(c.Request.Context(), platform, progressLogger())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": fmt.Sprintf("%s 登录失败: %v", platform, err)})
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// ApplyJobs GET /apply_jobs/:platform 同步执行一次投递
func (h *Handler) ApplyJobs(c *gin.Context) {
	platform := c.Param("platform")
	res, err := h.Jobs.Apply(c.Request.Context(), platform, progressLogger())
	if errors.Is(err, apply.ErrSessionRequired) {
		c.Redirect(http.StatusFound, "/login/"+platform)
		return
	}
	if err != nil {
		body := gin.H{"error": err.Error()}
		if res != nil {
			body["applied"] = len(res.Records)
		}
		c.JSON(statusFor(err), body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"platform": platform,
		"run_id":   res.RunID,
		"applied":  len(res.Records),
		"listings": len(res.Listings),
		"stopped":  res.Stopped,
	})
}

// GetPreferences GET /preferences
func (h *Handler) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.Preferences.Preferences())
}

// SavePreferences POST /preferences 校验后写回配置文件
func (h *Handler) SavePreferences(c *gin.Context) {
	var form preferencesForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数格式错误: " + err.Error()})
		return
	}
	prefs := form.merge(h.Preferences.Preferences())
	if err := h.Preferences.SavePreferences(prefs); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if c.ContentType() == gin.MIMEJSON {
		c.JSON(http.StatusOK, h.Preferences.Preferences())
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// StartAutomation GET /start_automation
func (h *Handler) StartAutomation(c *gin.Context) {
	ctx := h.BaseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := h.Automation.Start(ctx); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"automation_running": true})
}

// StopAutomation GET /stop_automation
func (h *Handler) StopAutomation(c *gin.Context) {
	h.Automation.Stop()
	c.JSON(http.StatusOK, gin.H{"automation_running": false})
}

// StopPlatform POST /stop/:platform 请求停止正在进行的投递
func (h *Handler) StopPlatform(c *gin.Context) {
	if err := h.Jobs.Stop(c.Param("platform")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"stopping": c.Param("platform")})
}

// Logout DELETE /session/:platform 删除保存的 Cookie
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Jobs.Logout(c.Param("platform")); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, worker.ErrUnknownPlatform):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrRunInProgress), errors.Is(err, scheduler.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, config.ErrInvalidPreferences):
		return http.StatusBadRequest
	case errors.Is(err, apply.ErrSessionRequired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
