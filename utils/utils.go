package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration 计算并格式化耗时，格式为 "H时m分s秒"
func FormatDuration(startTime, endTime time.Time) string {
	duration := endTime.Sub(startTime)
	if duration < 0 {
		duration = 0
	}

	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	return fmt.Sprintf("%d时%d分%d秒", hours, minutes, seconds)
}

// IsEmpty 检查字符串是否为空（去除空格后）
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// DefaultIfEmpty 如果字符串为空，返回默认值
func DefaultIfEmpty(s, defaultValue string) string {
	if IsEmpty(s) {
		return defaultValue
	}
	return s
}
