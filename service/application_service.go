package service

import (
	"sync"

	"easy_apply_go/model"
	"easy_apply_go/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ApplicationService 进程内共享的投递记录，只追加。
// 配置了数据库时同时持久化，否则仅保存在内存中。
type ApplicationService struct {
	mu      sync.RWMutex
	records []model.ApplicationRecord
	seen    map[string]bool
	repo    repository.ApplicationRepository
}

// NewApplicationService repo 可为 nil
func NewApplicationService(repo repository.ApplicationRepository) *ApplicationService {
	return &ApplicationService{
		seen: make(map[string]bool),
		repo: repo,
	}
}

func key(platform, jobURL string) string {
	return platform + "|" + jobURL
}

// LoadHistory 从数据库加载历史记录
func (s *ApplicationService) LoadHistory() error {
	if s.repo == nil {
		return nil
	}
	history, err := s.repo.FindAll()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range history {
		if s.seen[key(r.Platform, r.JobURL)] {
			continue
		}
		s.records = append(s.records, r)
		s.seen[key(r.Platform, r.JobURL)] = true
	}
	log.Infof("已加载%d条历史投递记录", len(history))
	return nil
}

// Record 追加一条投递记录。持久化失败只记录日志，内存记录照常保留
func (s *ApplicationService) Record(r model.ApplicationRecord) model.ApplicationRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.records = append(s.records, r)
	s.seen[key(r.Platform, r.JobURL)] = true
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Save(r); err != nil {
			log.WithField("job_url", r.JobURL).Errorf("保存投递记录失败: %v", err)
		}
	}
	return r
}

// All 返回全部记录的副本，按追加顺序
func (s *ApplicationService) All() []model.ApplicationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ApplicationRecord(nil), s.records...)
}

func (s *ApplicationService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Applied 是否已投递过该职位
func (s *ApplicationService) Applied(platform, jobURL string) bool {
	s.mu.RLock()
	hit := s.seen[key(platform, jobURL)]
	s.mu.RUnlock()
	if hit || s.repo == nil {
		return hit
	}
	exists, err := s.repo.ExistsByPlatformAndURL(platform, jobURL)
	if err != nil {
		log.Warnf("查询投递记录失败: %v", err)
		return false
	}
	return exists
}
