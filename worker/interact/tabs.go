package interact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"easy_apply_go/worker/browser"
)

// SwitchTab 切换到指定标签页
func (i *Interactor) SwitchTab(handle string) error {
	return i.driver.SwitchTab(handle)
}

// NewestTab returns the most recent tab not present in before.
func (i *Interactor) NewestTab(before []string) (string, bool) {
	tabs, err := i.driver.Tabs()
	if err != nil {
		return "", false
	}
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	for n := len(tabs) - 1; n >= 0; n-- {
		if !known[tabs[n]] {
			return tabs[n], true
		}
	}
	return "", false
}

// WaitNewTab 等待新标签页打开
func (i *Interactor) WaitNewTab(ctx context.Context, before []string, timeout time.Duration) (string, error) {
	var handle string
	err := i.Poll(ctx, timeout, func() (bool, error) {
		h, ok := i.NewestTab(before)
		handle = h
		return ok, nil
	})
	if err != nil {
		return "", fmt.Errorf("new tab: %w", err)
	}
	return handle, nil
}

// RestoreTabs 关闭 before 之外的标签页并切回 origin
func (i *Interactor) RestoreTabs(origin string, before []string) error {
	tabs, err := i.driver.Tabs()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(before))
	for _, h := range before {
		known[h] = true
	}
	var errs []error
	for _, h := range tabs {
		if known[h] {
			continue
		}
		if err := i.driver.CloseTab(h); err != nil && !errors.Is(err, browser.ErrNoSuchTab) {
			errs = append(errs, fmt.Errorf("关闭标签页%s失败: %w", h, err))
		}
	}
	if i.driver.CurrentTab() != origin {
		if err := i.driver.SwitchTab(origin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
