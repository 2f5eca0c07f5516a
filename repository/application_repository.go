package repository

import (
	"easy_apply_go/model"

	"gorm.io/gorm"
)

// ApplicationRepository 投递记录仓储接口
type ApplicationRepository interface {
	Save(record model.ApplicationRecord) error
	FindAll() ([]model.ApplicationRecord, error)
	ExistsByPlatformAndURL(platform, jobURL string) (bool, error)
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Save(record model.ApplicationRecord) error {
	return r.db.Create(model.NewApplicationEntity(record)).Error
}

// FindAll 按投递时间升序返回
func (r *applicationRepository) FindAll() ([]model.ApplicationRecord, error) {
	var entities []*model.ApplicationEntity
	if err := r.db.Order("submitted_at ASC, id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	records := make([]model.ApplicationRecord, 0, len(entities))
	for _, e := range entities {
		records = append(records, e.ToRecord())
	}
	return records, nil
}

func (r *applicationRepository) ExistsByPlatformAndURL(platform, jobURL string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ApplicationEntity{}).
		Where("platform = ? AND job_url = ?", platform, jobURL).
		Count(&count).Error
	return count > 0, err
}
