package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidPreferences 偏好设置校验失败
var ErrInvalidPreferences = errors.New("invalid job preferences")

// GlobalConfig 全局配置结构体
type GlobalConfig struct {
	JobPreferences JobPreferences   `mapstructure:"job_preferences"`
	Secrets        Secrets          `mapstructure:"secrets"`
	Logging        LoggingConfig    `mapstructure:"logging"`
	Browser        BrowserConfig    `mapstructure:"browser"`
	Timeouts       TimeoutConfig    `mapstructure:"timeouts"`
	Paths          PathConfig       `mapstructure:"paths"`
	Database       DatabaseConfig   `mapstructure:"database"`
	Redis          RedisConfig      `mapstructure:"redis"`
	Automation     AutomationConfig `mapstructure:"automation"`
	Server         ServerConfig     `mapstructure:"server"`
}

// JobPreferences search preferences shared by every platform, plus the
// per-platform filter selections.
type JobPreferences struct {
	JobTitle           string   `mapstructure:"job_title" yaml:"job_title" json:"job_title" validate:"required"`
	Location           string   `mapstructure:"location" yaml:"location" json:"location"`
	Radius             int      `mapstructure:"radius" yaml:"radius" json:"radius" validate:"gte=0,lte=500"`
	XingRemoteOption   []string `mapstructure:"xing_remote_option" yaml:"xing_remote_option" json:"xing_remote_option"`
	XingEmploymentType []string `mapstructure:"xing_employment_type" yaml:"xing_employment_type" json:"xing_employment_type"`
	XingCareerLevel    []string `mapstructure:"xing_career_level" yaml:"xing_career_level" json:"xing_career_level"`
	StepStoneWFH       string   `mapstructure:"stepstone_wfh" yaml:"stepstone_wfh" json:"stepstone_wfh" validate:"omitempty,oneof=0 1"`
	LinkedInRemote     string   `mapstructure:"linkedin_remote" yaml:"linkedin_remote" json:"linkedin_remote" validate:"omitempty,oneof=0 1"`
	TitleBlacklist     []string `mapstructure:"title_blacklist" yaml:"title_blacklist" json:"title_blacklist"`
}

// Secrets 各平台登录凭据
type Secrets struct {
	StepStoneUsername string `mapstructure:"stepstone_username"`
	StepStonePassword string `mapstructure:"stepstone_password"`
	LinkedInUsername  string `mapstructure:"linkedin_username"`
	LinkedInPassword  string `mapstructure:"linkedin_password"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	LogFile string `mapstructure:"log_file"`
	Level   string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format  string `mapstructure:"format" validate:"oneof=text json"`
}

// BrowserConfig 浏览器引擎配置
type BrowserConfig struct {
	Engine         string        `mapstructure:"engine" validate:"oneof=playwright chromedp"`
	Headless       bool          `mapstructure:"headless"`
	WindowWidth    int           `mapstructure:"window_width" validate:"gt=0"`
	WindowHeight   int           `mapstructure:"window_height" validate:"gt=0"`
	UserDataDir    string        `mapstructure:"user_data_dir"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" validate:"gt=0"`
	NavigationWait time.Duration `mapstructure:"navigation_timeout" validate:"gt=0"`
}

// TimeoutConfig bounded waits used by the interaction layer and workflow.
type TimeoutConfig struct {
	Login          time.Duration `mapstructure:"login" validate:"gt=0"`
	Element        time.Duration `mapstructure:"element" validate:"gt=0"`
	ClickAttempts  int           `mapstructure:"click_attempts" validate:"gte=1,lte=10"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	SendButton     time.Duration `mapstructure:"send_button" validate:"gt=0"`
	SuccessMarker  time.Duration `mapstructure:"success_marker" validate:"gt=0"`
	AlreadyApplied time.Duration `mapstructure:"already_applied" validate:"gt=0"`
	ListingPause   time.Duration `mapstructure:"listing_pause"`
}

// PathConfig 本地文件路径
type PathConfig struct {
	CookiesDir string `mapstructure:"cookies_dir" validate:"required"`
	Resume     string `mapstructure:"resume" validate:"required"`
}

// DatabaseConfig 数据库配置，DSN 为空时不启用持久化
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=mysql postgres"`
	DSN    string `mapstructure:"dsn"`
}

// RedisConfig redis 配置，URL 为空时使用进程内锁
type RedisConfig struct {
	URL string `mapstructure:"url"`

	// 锁租期，持有者每 ttl/3 续期；进程崩溃后最多 ttl 才能重新获取
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

// AutomationConfig 定时投递配置
type AutomationConfig struct {
	Schedule  string   `mapstructure:"schedule" validate:"required"`
	Platforms []string `mapstructure:"platforms"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

var validate = validator.New()

// Store owns the configuration document. Preferences are the only part
// mutated at runtime.
type Store struct {
	mu   sync.RWMutex
	path string
	v    *viper.Viper
	cfg  GlobalConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job_preferences.radius", 20)
	v.SetDefault("job_preferences.stepstone_wfh", "0")
	v.SetDefault("job_preferences.linkedin_remote", "0")

	v.SetDefault("secrets.stepstone_username", "")
	v.SetDefault("secrets.stepstone_password", "")
	v.SetDefault("secrets.linkedin_username", "")
	v.SetDefault("secrets.linkedin_password", "")

	v.SetDefault("logging.log_file", "log/app.log")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("browser.engine", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.action_timeout", "5s")
	v.SetDefault("browser.navigation_timeout", "60s")

	v.SetDefault("timeouts.login", "60s")
	v.SetDefault("timeouts.element", "10s")
	v.SetDefault("timeouts.click_attempts", 3)
	v.SetDefault("timeouts.attempt_timeout", "2s")
	v.SetDefault("timeouts.poll_interval", "100ms")
	v.SetDefault("timeouts.send_button", "15s")
	v.SetDefault("timeouts.success_marker", "10s")
	v.SetDefault("timeouts.already_applied", "4s")
	v.SetDefault("timeouts.listing_pause", "2s")

	v.SetDefault("paths.cookies_dir", "cookies")
	v.SetDefault("paths.resume", "user_data/plain_text_resume.yaml")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl", "30m")

	v.SetDefault("automation.schedule", "@every 6h")

	v.SetDefault("server.addr", "127.0.0.1:5001")
}

// Load 读取配置文件并校验
func Load(path string) (*Store, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("EASYAPPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}

	return &Store{path: path, v: v, cfg: cfg}, nil
}

// Config returns a snapshot of the whole configuration.
func (s *Store) Config() GlobalConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.JobPreferences = s.cfg.JobPreferences.Clone()
	return cfg
}

// Preferences returns a copy of the current job preferences.
func (s *Store) Preferences() JobPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.JobPreferences.Clone()
}

// SavePreferences 校验并写回配置文件
//
// Only the job_preferences section of the file is rewritten; defaults and
// environment overrides never leak into the document.
func (s *Store) SavePreferences(p JobPreferences) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreferences, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := viper.New()
	doc.SetConfigFile(s.path)
	if err := doc.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", s.path, err)
	}
	doc.Set("job_preferences", p.toMap())
	if err := doc.WriteConfig(); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}

	s.v.Set("job_preferences", p.toMap())
	s.cfg.JobPreferences = p.Clone()
	return nil
}

// Clone 深拷贝偏好设置
func (p JobPreferences) Clone() JobPreferences {
	c := p
	c.XingRemoteOption = cloneStrings(p.XingRemoteOption)
	c.XingEmploymentType = cloneStrings(p.XingEmploymentType)
	c.XingCareerLevel = cloneStrings(p.XingCareerLevel)
	c.TitleBlacklist = cloneStrings(p.TitleBlacklist)
	return c
}

func (p JobPreferences) toMap() map[string]interface{} {
	return map[string]interface{}{
		"job_title":            p.JobTitle,
		"location":             p.Location,
		"radius":               p.Radius,
		"xing_remote_option":   cloneStrings(p.XingRemoteOption),
		"xing_employment_type": cloneStrings(p.XingEmploymentType),
		"xing_career_level":    cloneStrings(p.XingCareerLevel),
		"stepstone_wfh":        p.StepStoneWFH,
		"linkedin_remote":      p.LinkedInRemote,
		"title_blacklist":      cloneStrings(p.TitleBlacklist),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
