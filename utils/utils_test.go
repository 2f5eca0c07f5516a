package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppendParam(t *testing.T) {
	tests := []struct {
		name, value, want string
	}{
		{"wfh", "1", "&wfh=1"},
		{"wfh", "0", ""},
		{"wfh", "  ", ""},
		{"keywords", "Go Developer", "&keywords=Go%20Developer"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AppendParam(tt.name, tt.value), tt.value)
	}
}

func TestAppendListParam(t *testing.T) {
	tests := []struct {
		desc   string
		values []string
		want   string
	}{
		{"empty", nil, ""},
		{"blank only", []string{" ", ""}, ""},
		{"unlimited", []string{"FULL_TIME.ef2fe9", "0"}, ""},
		{"joined", []string{"FULL_REMOTE.050e26", " PARTLY_REMOTE.050e26 "}, "&remoteOption=FULL_REMOTE.050e26*PARTLY_REMOTE.050e26"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, AppendListParam("remoteOption", tt.values, "*"))
		})
	}
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "Go-Developer", PathSegment("  Go   Developer "))
	assert.Equal(t, "M%C3%BCnchen", PathSegment("München"))
}

func TestQueryValue(t *testing.T) {
	assert.Equal(t, "C%2B%2B%20Entwickler", QueryValue(" C++ Entwickler"))
}

func TestFormatDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "1时2分3秒", FormatDuration(start, start.Add(time.Hour+2*time.Minute+3*time.Second)))
	assert.Equal(t, "0时0分0秒", FormatDuration(start, start.Add(-time.Second)))
}

func TestDefaultIfEmpty(t *testing.T) {
	assert.Equal(t, "Aschaffenburg", DefaultIfEmpty(" ", "Aschaffenburg"))
	assert.Equal(t, "Berlin", DefaultIfEmpty("Berlin", "Aschaffenburg"))
}
