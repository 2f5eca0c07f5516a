package utils

import (
	"net/url"
	"strings"
)

// UNLIMITED_CODE 不限选项的代码
const UNLIMITED_CODE = "0"

// QueryValue 查询参数转义，空格编码为 %20
func QueryValue(s string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(s)), "+", "%20")
}

// PathSegment 路径片段，连续空白替换为一个 -
func PathSegment(s string) string {
	return url.PathEscape(strings.Join(strings.Fields(s), "-"))
}

// AppendParam 追加参数，空值或不限时返回空字符串
func AppendParam(name, value string) string {
	value = strings.TrimSpace(value)
	if value == "" || value == UNLIMITED_CODE {
		return ""
	}
	return "&" + name + "=" + QueryValue(value)
}

// AppendListParam 追加多选参数，各值以 sep 连接
// 空白项忽略；包含 "0"（UNLIMITED_CODE）时表示不限，直接返回空字符串
func AppendListParam(name string, values []string, sep string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == UNLIMITED_CODE {
			return ""
		}
		if v != "" {
			parts = append(parts, QueryValue(v))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "&" + name + "=" + strings.Join(parts, sep)
}
