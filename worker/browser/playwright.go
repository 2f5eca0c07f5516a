package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"easy_apply_go/model"

	"github.com/playwright-community/playwright-go"
	log "github.com/sirupsen/logrus"
)

// PlaywrightDriver 基于 playwright 的浏览器驱动
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext

	mu      sync.Mutex
	tabs    map[string]playwright.Page
	order   []string
	current string
	nextID  int
	navMs   float64
}

// NewPlaywrightDriver 启动 Chromium 并打开首个标签页
func NewPlaywrightDriver(opts Options) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("启动Playwright失败: %w", err)
	}

	d := &PlaywrightDriver{
		pw:    pw,
		tabs:  make(map[string]playwright.Page),
		navMs: opts.NavigationMs,
	}
	viewport := &playwright.Size{Width: opts.WindowWidth, Height: opts.WindowHeight}
	args := []string{"--disable-blink-features=AutomationControlled"}

	if opts.UserDataDir != "" {
		ctx, err := pw.Chromium.LaunchPersistentContext(opts.UserDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(opts.Headless),
			Viewport: viewport,
			Args:     args,
		})
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		d.context = ctx
	} else {
		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(opts.Headless),
			Args:     args,
		})
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		d.browser = browser
		ctx, err := browser.NewContext(playwright.BrowserNewContextOptions{Viewport: viewport})
		if err != nil {
			_ = browser.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("创建浏览器上下文失败: %w", err)
		}
		d.context = ctx
	}
	if opts.ActionTimeoutMs > 0 {
		d.context.SetDefaultTimeout(opts.ActionTimeoutMs)
	}

	var page playwright.Page
	if pages := d.context.Pages(); len(pages) > 0 {
		page = pages[0]
	} else if page, err = d.context.NewPage(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}
	d.current = d.register(page)

	log.Info("✓ Playwright 浏览器已启动")
	return d, nil
}

func (d *PlaywrightDriver) register(page playwright.Page) string {
	for id, p := range d.tabs {
		if p == page {
			return id
		}
	}
	d.nextID++
	id := fmt.Sprintf("tab-%d", d.nextID)
	d.tabs[id] = page
	d.order = append(d.order, id)
	return id
}

// sync 同步上下文中的页面列表，登记新打开的页面并移除已关闭的页面
func (d *PlaywrightDriver) sync() {
	for _, p := range d.context.Pages() {
		d.register(p)
	}
	kept := d.order[:0]
	for _, id := range d.order {
		if d.tabs[id].IsClosed() {
			delete(d.tabs, id)
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
}

func (d *PlaywrightDriver) page() (playwright.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.tabs[d.current]
	if !ok || p.IsClosed() {
		return nil, ErrBrowserClosed
	}
	return p, nil
}

func wrapPlaywrightErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTargetClosed) {
		return fmt.Errorf("%w: %v", ErrBrowserClosed, err)
	}
	return err
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.page()
	if err != nil {
		return err
	}
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
	if d.navMs > 0 {
		opts.Timeout = playwright.Float(d.navMs)
	}
	_, err = p.Goto(target, opts)
	return wrapPlaywrightErr(err)
}

func (d *PlaywrightDriver) CurrentURL() (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

func (d *PlaywrightDriver) FindAll(loc Locator) ([]Element, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	return collectLocators(p.Locator(loc.String()))
}

func collectLocators(l playwright.Locator) ([]Element, error) {
	all, err := l.All()
	if err != nil {
		return nil, wrapPlaywrightErr(err)
	}
	out := make([]Element, 0, len(all))
	for _, item := range all {
		out = append(out, &playwrightElement{loc: item})
	}
	return out, nil
}

func (d *PlaywrightDriver) ExecuteScript(script string) (interface{}, error) {
	p, err := d.page()
	if err != nil {
		return nil, err
	}
	v, err := p.Evaluate(script)
	return v, wrapPlaywrightErr(err)
}

func (d *PlaywrightDriver) HTML() (string, error) {
	p, err := d.page()
	if err != nil {
		return "", err
	}
	html, err := p.Content()
	return html, wrapPlaywrightErr(err)
}

func (d *PlaywrightDriver) Cookies() ([]model.Cookie, error) {
	raw, err := d.context.Cookies()
	if err != nil {
		return nil, wrapPlaywrightErr(err)
	}
	cookies := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		mc := model.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			mc.SameSite = string(*c.SameSite)
		}
		if mc.Expires < 0 {
			mc.Expires = 0
		}
		cookies = append(cookies, mc)
	}
	return cookies, nil
}

// AddCookies 注入 Cookie。域名与路径被忽略，统一绑定到当前页面的 origin
func (d *PlaywrightDriver) AddCookies(cookies []model.Cookie) error {
	current, err := d.CurrentURL()
	if err != nil {
		return err
	}
	u, err := url.Parse(current)
	if err != nil || u.Host == "" {
		return fmt.Errorf("当前页面无有效地址，无法注入Cookie: %q", current)
	}
	origin := u.Scheme + "://" + u.Host

	batch := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			URL:      playwright.String(origin),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		switch c.SameSite {
		case "Strict", "Lax", "None":
			ss := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &ss
		}
		batch = append(batch, oc)
	}
	if len(batch) == 0 {
		return nil
	}
	return wrapPlaywrightErr(d.context.AddCookies(batch))
}

func (d *PlaywrightDriver) Tabs() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sync()
	return append([]string(nil), d.order...), nil
}

func (d *PlaywrightDriver) CurrentTab() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *PlaywrightDriver) OpenTab(ctx context.Context, target string) (string, error) {
	page, err := d.context.NewPage()
	if err != nil {
		return "", wrapPlaywrightErr(err)
	}
	d.mu.Lock()
	id := d.register(page)
	d.mu.Unlock()

	if target != "" {
		opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateDomcontentloaded}
		if d.navMs > 0 {
			opts.Timeout = playwright.Float(d.navMs)
		}
		if _, err := page.Goto(target, opts); err != nil {
			return id, wrapPlaywrightErr(err)
		}
	}
	return id, ctx.Err()
}

func (d *PlaywrightDriver) SwitchTab(handle string) error {
	d.mu.Lock()
	d.sync()
	p, ok := d.tabs[handle]
	if ok {
		d.current = handle
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, handle)
	}
	return wrapPlaywrightErr(p.BringToFront())
}

func (d *PlaywrightDriver) CloseTab(handle string) error {
	d.mu.Lock()
	p, ok := d.tabs[handle]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, handle)
	}
	if err := p.Close(); err != nil {
		return wrapPlaywrightErr(err)
	}
	d.mu.Lock()
	d.sync()
	d.mu.Unlock()
	return nil
}

// Close 关闭浏览器并停止 playwright 进程
func (d *PlaywrightDriver) Close() error {
	var errs []error
	if d.context != nil {
		if err := d.context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e *playwrightElement) Text() (string, error) {
	s, err := e.loc.InnerText()
	return s, wrapPlaywrightErr(err)
}

func (e *playwrightElement) Attribute(name string) (string, error) {
	s, err := e.loc.GetAttribute(name)
	return s, wrapPlaywrightErr(err)
}

func (e *playwrightElement) Visible() (bool, error) {
	v, err := e.loc.IsVisible()
	return v, wrapPlaywrightErr(err)
}

func (e *playwrightElement) Click() error {
	return wrapPlaywrightErr(e.loc.Click())
}

func (e *playwrightElement) ClickWithin(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: no time left", ErrActionTimeout)
	}
	err := e.loc.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(float64(timeout.Milliseconds()))})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrActionTimeout, err)
	}
	return wrapPlaywrightErr(err)
}

func (e *playwrightElement) JSClick() error {
	_, err := e.loc.Evaluate("el => el.click()", nil)
	return wrapPlaywrightErr(err)
}

func (e *playwrightElement) Clear() error {
	return wrapPlaywrightErr(e.loc.Clear())
}

func (e *playwrightElement) SendKeys(text string) error {
	return wrapPlaywrightErr(e.loc.PressSequentially(text))
}

func (e *playwrightElement) FindAll(loc Locator) ([]Element, error) {
	return collectLocators(e.loc.Locator(loc.String()))
}
