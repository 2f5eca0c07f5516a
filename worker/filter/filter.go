// Package filter decides whether a job listing should be applied to.
package filter

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Listing 过滤所需的职位信息
type Listing interface {
	Title() string
	HasEasyApply() bool
}

// IsEligible 职位需带有快速投递标记，且标题不含任何黑名单词
func IsEligible(l Listing, blacklist []string) bool {
	if !l.HasEasyApply() {
		log.WithField("title", l.Title()).Debug("无快速投递标记，跳过")
		return false
	}
	if term, hit := BlacklistedTerm(l.Title(), blacklist); hit {
		log.WithFields(log.Fields{"title": l.Title(), "term": term}).Info("标题命中黑名单，跳过")
		return false
	}
	return true
}

// BlacklistedTerm returns the first blacklist term contained in title,
// compared case-insensitively. Blank terms never match.
func BlacklistedTerm(title string, blacklist []string) (string, bool) {
	lower := strings.ToLower(title)
	for _, term := range blacklist {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		if strings.Contains(lower, t) {
			return term, true
		}
	}
	return "", false
}
