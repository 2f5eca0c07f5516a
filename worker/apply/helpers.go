package apply

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"easy_apply_go/worker/browser"
)

// OpenInNewTab 点击职位（或直接打开其链接）并切换到新标签页
func OpenInNewTab(ctx context.Context, s *Session, l Listing) error {
	before, err := s.Driver.Tabs()
	if err != nil {
		return err
	}
	if l.Element != nil && s.Interact.ClickElement(l.Element) {
		if handle, err := s.Interact.WaitNewTab(ctx, before, s.Timeouts.AttemptTimeout); err == nil {
			return s.Interact.SwitchTab(handle)
		}
	}
	if l.URL == "" {
		return errors.New("职位未打开新标签页，且没有可用链接")
	}
	handle, err := s.Driver.OpenTab(ctx, l.URL)
	if err != nil {
		return fmt.Errorf("打开职位链接失败: %w", err)
	}
	return s.Interact.SwitchTab(handle)
}

// WaitForLogin 等待登录标记出现，直到 ctx 结束
func WaitForLogin(ctx context.Context, s *Session, indicator browser.Locator) error {
	timeout := s.Timeouts.Login
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if _, err := s.Interact.WaitFor(ctx, indicator, timeout); err != nil {
		return fmt.Errorf("登录超时: %w", err)
	}
	return nil
}

// ListingText 读取子元素文本，找不到返回空串
func ListingText(el browser.Element, loc browser.Locator) string {
	children, err := el.FindAll(loc)
	if err != nil || len(children) == 0 {
		return ""
	}
	text, _ := children[0].Text()
	return text
}

// ListingHref 读取子元素链接
func ListingHref(el browser.Element, loc browser.Locator) string {
	children, err := el.FindAll(loc)
	if err != nil || len(children) == 0 {
		return ""
	}
	href, _ := children[0].Attribute("href")
	return href
}

// HasChild 是否存在匹配的子元素
func HasChild(el browser.Element, loc browser.Locator) bool {
	children, err := el.FindAll(loc)
	return err == nil && len(children) > 0
}

// ResolveHref 将相对链接解析为基于 base 的绝对链接
func ResolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil || ref.IsAbs() {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
