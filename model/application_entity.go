package model

import (
	"time"
)

// ApplicationRecord 一次确认成功的投递记录
type ApplicationRecord struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	JobURL      string    `json:"job_url"`
	Title       string    `json:"title,omitempty"`
	SubmittedAt time.Time `json:"applied_at"`
}

// ApplicationEntity 投递记录持久化实体
type ApplicationEntity struct {
	ID          int64     `gorm:"primaryKey;autoIncrement;column:id"`
	RecordID    string    `gorm:"column:record_id;size:36;uniqueIndex"`
	Platform    string    `gorm:"column:platform;size:32;index:idx_platform_url"`
	JobURL      string    `gorm:"column:job_url;size:1024;index:idx_platform_url"`
	Title       string    `gorm:"column:title"`
	SubmittedAt time.Time `gorm:"column:submitted_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ApplicationEntity) TableName() string {
	return "application"
}

// ToRecord 实体转换为记录
func (e *ApplicationEntity) ToRecord() ApplicationRecord {
	return ApplicationRecord{
		ID:          e.RecordID,
		Platform:    e.Platform,
		JobURL:      e.JobURL,
		Title:       e.Title,
		SubmittedAt: e.SubmittedAt,
	}
}

// NewApplicationEntity 记录转换为实体
func NewApplicationEntity(r ApplicationRecord) *ApplicationEntity {
	return &ApplicationEntity{
		RecordID:    r.ID,
		Platform:    r.Platform,
		JobURL:      r.JobURL,
		Title:       r.Title,
		SubmittedAt: r.SubmittedAt,
		CreatedAt:   time.Now(),
	}
}
