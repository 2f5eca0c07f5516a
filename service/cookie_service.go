package service

import (
	"fmt"

	"easy_apply_go/repository"
	"easy_apply_go/worker/browser"

	log "github.com/sirupsen/logrus"
)

// CookieService 会话 Cookie 的保存与恢复。不跟踪过期时间，是否有效由登录探测决定
type CookieService struct {
	cookieRepo repository.CookieRepository
}

func NewCookieService(cookieRepo repository.CookieRepository) *CookieService {
	return &CookieService{
		cookieRepo: cookieRepo,
	}
}

// HasSession 平台是否保存过 Cookie
func (s *CookieService) HasSession(platform string) bool {
	return s.cookieRepo.Exists(platform)
}

// Load 将已保存的 Cookie 注入当前浏览器上下文。
// 调用前需先打开平台页面；域名与路径会被替换为当前页面的地址。
func (s *CookieService) Load(platform string, driver browser.Driver) (bool, error) {
	if !s.cookieRepo.Exists(platform) {
		log.Infof("未找到%s Cookie，跳过加载", platform)
		return false, nil
	}
	cookies, err := s.cookieRepo.FindByPlatform(platform)
	if err != nil {
		return false, fmt.Errorf("获取%s Cookie失败: %w", platform, err)
	}
	for i := range cookies {
		cookies[i].Domain = ""
		cookies[i].Path = ""
	}
	if err := driver.AddCookies(cookies); err != nil {
		return false, fmt.Errorf("添加%s Cookie到浏览器失败: %w", platform, err)
	}
	log.Infof("已加载%s Cookie，共%d条", platform, len(cookies))
	return true, nil
}

// Save 保存浏览器当前全部 Cookie，覆盖旧数据
func (s *CookieService) Save(platform string, driver browser.Driver) error {
	cookies, err := driver.Cookies()
	if err != nil {
		return fmt.Errorf("获取浏览器Cookie失败: %w", err)
	}
	return s.cookieRepo.Save(platform, cookies)
}

// Delete 删除指定平台的Cookie
func (s *CookieService) Delete(platform string) error {
	return s.cookieRepo.DeleteByPlatform(platform)
}
