package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"easy_apply_go/model"

	log "github.com/sirupsen/logrus"
)

var platformName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// CookieRepository Cookie仓储接口，每个平台一份
type CookieRepository interface {
	Exists(platform string) bool
	FindByPlatform(platform string) ([]model.Cookie, error)
	Save(platform string, cookies []model.Cookie) error
	DeleteByPlatform(platform string) error
}

type fileCookieRepository struct {
	dir string
}

// NewCookieRepository 基于目录的 Cookie 仓储，文件为 <dir>/<platform>.json
func NewCookieRepository(dir string) CookieRepository {
	return &fileCookieRepository{dir: dir}
}

func (r *fileCookieRepository) path(platform string) (string, error) {
	if !platformName.MatchString(platform) {
		return "", fmt.Errorf("非法平台名称: %q", platform)
	}
	return filepath.Join(r.dir, platform+".json"), nil
}

// Exists 文件存在且非空
func (r *fileCookieRepository) Exists(platform string) bool {
	p, err := r.path(platform)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// FindByPlatform 读取平台 Cookie，文件不存在时返回 nil, nil
func (r *fileCookieRepository) FindByPlatform(platform string) ([]model.Cookie, error) {
	p, err := r.path(platform)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取Cookie文件失败: %w", err)
	}
	var cookies []model.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("解析%s Cookie失败: %w", platform, err)
	}
	return cookies, nil
}

// Save 覆盖保存，先写临时文件再重命名
func (r *fileCookieRepository) Save(platform string, cookies []model.Cookie) error {
	p, err := r.path(platform)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("创建Cookie目录失败: %w", err)
	}
	if cookies == nil {
		cookies = []model.Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.dir, platform+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入Cookie失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("保存Cookie失败: %w", err)
	}
	log.Infof("保存%s Cookie成功，共%d条", platform, len(cookies))
	return nil
}

// DeleteByPlatform 删除指定平台的Cookie
func (r *fileCookieRepository) DeleteByPlatform(platform string) error {
	p, err := r.path(platform)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	log.Infof("删除Cookie成功: platform=%s", platform)
	return nil
}
