// Package interact wraps a browser.Driver with bounded waits, click retry
// and tab bookkeeping. Nothing here blocks longer than its timeout.
package interact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"easy_apply_go/worker/browser"

	log "github.com/sirupsen/logrus"
)

// ErrTimedOut 等待元素超时
var ErrTimedOut = errors.New("timed out waiting for element")

const (
	DefaultAttempts       = 3
	DefaultAttemptTimeout = 2 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
)

// Options 重试与轮询参数
type Options struct {
	Attempts       int
	AttemptTimeout time.Duration
	PollInterval   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Interactor 带超时和重试的页面交互
type Interactor struct {
	driver browser.Driver
	opts   Options
	log    *log.Entry
}

// New 创建交互器，零值参数使用默认值
func New(driver browser.Driver, opts Options, entry *log.Entry) *Interactor {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	return &Interactor{driver: driver, opts: opts.withDefaults(), log: entry}
}

// Driver returns the underlying browser driver.
func (i *Interactor) Driver() browser.Driver {
	return i.driver
}

// Options returns the effective retry settings.
func (i *Interactor) Options() Options {
	return i.opts
}

// Poll evaluates cond until it reports true, ctx ends or timeout elapses.
// cond is always evaluated at least once. A fatal browser error stops polling.
func (i *Interactor) Poll(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if ok {
			return nil
		}
		if errors.Is(err, browser.ErrBrowserClosed) {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimedOut
		}
		wait := i.opts.PollInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitFor 等待第一个匹配元素出现
func (i *Interactor) WaitFor(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	var found browser.Element
	err := i.Poll(ctx, timeout, func() (bool, error) {
		els, err := i.driver.FindAll(loc)
		if err != nil || len(els) == 0 {
			return false, err
		}
		found = els[0]
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return found, nil
}

// WaitForAll 等待至少一个匹配元素，返回全部匹配
func (i *Interactor) WaitForAll(ctx context.Context, loc browser.Locator, timeout time.Duration) ([]browser.Element, error) {
	var found []browser.Element
	err := i.Poll(ctx, timeout, func() (bool, error) {
		els, err := i.driver.FindAll(loc)
		if err != nil || len(els) == 0 {
			return false, err
		}
		found = els
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return found, nil
}

// WaitVisible 等待第一个可见的匹配元素
func (i *Interactor) WaitVisible(ctx context.Context, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	var found browser.Element
	err := i.Poll(ctx, timeout, func() (bool, error) {
		els, err := i.driver.FindAll(loc)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			if ok, _ := el.Visible(); ok {
				found = el
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc, err)
	}
	return found, nil
}

// Present reports whether loc appears within timeout.
func (i *Interactor) Present(ctx context.Context, loc browser.Locator, timeout time.Duration) bool {
	_, err := i.WaitFor(ctx, loc, timeout)
	return err == nil
}

// Click 查找并点击元素，最多尝试 attempts 次，每次查找加点击不超过 perAttempt。
// 等待超时视为该功能不可用，立即放弃；点击失败（元素过期、被遮挡）则重试。
func (i *Interactor) Click(ctx context.Context, loc browser.Locator, attempts int, perAttempt time.Duration) bool {
	if attempts <= 0 {
		attempts = i.opts.Attempts
	}
	if perAttempt <= 0 {
		perAttempt = i.opts.AttemptTimeout
	}
	for n := 1; n <= attempts; n++ {
		// 查找与点击共用同一个单次期限
		deadline := time.Now().Add(perAttempt)
		el, err := i.WaitVisible(ctx, loc, perAttempt)
		if err != nil {
			i.log.WithField("locator", loc.String()).Debugf("元素不可用: %v", err)
			return false
		}
		if err := el.ClickWithin(time.Until(deadline)); err != nil {
			i.log.WithField("locator", loc.String()).Debugf("第%d次点击失败: %v", n, err)
			continue
		}
		return true
	}
	i.log.WithField("locator", loc.String()).Warnf("点击失败，已重试%d次", attempts)
	return false
}

// ClickElement clicks an already resolved element with the default attempt cap.
func (i *Interactor) ClickElement(el browser.Element) bool {
	for n := 1; n <= i.opts.Attempts; n++ {
		if err := el.ClickWithin(i.opts.AttemptTimeout); err != nil {
			i.log.Debugf("第%d次点击失败: %v", n, err)
			continue
		}
		return true
	}
	return false
}

// ClickWithJSFallback 先原生点击，失败后改用脚本点击。两者都失败只记录日志
func (i *Interactor) ClickWithJSFallback(ctx context.Context, loc browser.Locator, timeout time.Duration) bool {
	el, err := i.WaitFor(ctx, loc, timeout)
	if err != nil {
		i.log.WithField("locator", loc.String()).Warnf("未找到元素: %v", err)
		return false
	}
	return i.ClickElementWithJSFallback(el, loc.String())
}

// ClickElementWithJSFallback is ClickWithJSFallback for a resolved element.
func (i *Interactor) ClickElementWithJSFallback(el browser.Element, what string) bool {
	nativeErr := el.ClickWithin(i.opts.AttemptTimeout)
	if nativeErr == nil {
		return true
	}
	if err := el.JSClick(); err != nil {
		i.log.WithField("locator", what).Warnf("原生点击失败(%v)，脚本点击也失败: %v", nativeErr, err)
		return false
	}
	i.log.WithField("locator", what).Debugf("原生点击失败(%v)，已使用脚本点击", nativeErr)
	return true
}

// Fill 清空输入框后输入文本
func (i *Interactor) Fill(ctx context.Context, loc browser.Locator, text string) error {
	el, err := i.WaitVisible(ctx, loc, i.opts.AttemptTimeout*time.Duration(i.opts.Attempts))
	if err != nil {
		return err
	}
	return FillElement(el, text)
}

// FillElement clears el and types text into it.
func FillElement(el browser.Element, text string) error {
	if err := el.Clear(); err != nil {
		return fmt.Errorf("清空输入框失败: %w", err)
	}
	if err := el.SendKeys(text); err != nil {
		return fmt.Errorf("输入失败: %w", err)
	}
	return nil
}
