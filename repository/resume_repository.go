package repository

import (
	"fmt"
	"os"

	"easy_apply_go/model"

	"gopkg.in/yaml.v3"
)

// ResumeRepository 简历资料只读仓储
type ResumeRepository interface {
	Load() (model.ResumeProfile, error)
}

type yamlResumeRepository struct {
	path string
}

// NewResumeRepository 从 YAML 文件读取简历
func NewResumeRepository(path string) ResumeRepository {
	return &yamlResumeRepository{path: path}
}

func (r *yamlResumeRepository) Load() (model.ResumeProfile, error) {
	var profile model.ResumeProfile
	data, err := os.ReadFile(r.path)
	if err != nil {
		return profile, fmt.Errorf("读取简历失败: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("解析简历失败: %w", err)
	}
	return profile, nil
}
