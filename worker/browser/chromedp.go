package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"easy_apply_go/model"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

// defaultActionTimeout 未配置 action_timeout 时单次操作的上限
const defaultActionTimeout = 5 * time.Second

const visibleJS = `function() { return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length); }`

type chromedpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromedpDriver 基于 chromedp 的浏览器驱动
type ChromedpDriver struct {
	allocCancel context.CancelFunc
	root        context.Context
	rootCancel  context.CancelFunc
	rootID      string

	mu      sync.Mutex
	tabs    map[string]*chromedpTab
	order   []string
	current string
	navWait time.Duration

	// 每次操作的上限，节点失效时 chromedp 的查询会一直重试
	actionTimeout time.Duration
}

// NewChromedpDriver 启动本地 Chrome
func NewChromedpDriver(parent context.Context, opts Options) (*ChromedpDriver, error) {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		flags = append(flags, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserDataDir != "" {
		flags = append(flags, chromedp.UserDataDir(opts.UserDataDir))
	}

	// 浏览器生命周期独立于调用方的 ctx，由 Close 显式结束
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(parent), flags...)
	root, rootCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(root); err != nil {
		rootCancel()
		allocCancel()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	d := &ChromedpDriver{
		allocCancel:   allocCancel,
		root:          root,
		rootCancel:    rootCancel,
		tabs:          make(map[string]*chromedpTab),
		navWait:       time.Duration(opts.NavigationMs) * time.Millisecond,
		actionTimeout: time.Duration(opts.ActionTimeoutMs) * time.Millisecond,
	}
	if d.actionTimeout <= 0 {
		d.actionTimeout = defaultActionTimeout
	}
	d.rootID = string(chromedp.FromContext(root).Target.TargetID)
	d.tabs[d.rootID] = &chromedpTab{ctx: root, cancel: rootCancel}
	d.order = []string{d.rootID}
	d.current = d.rootID

	log.Info("✓ chromedp 浏览器已启动")
	return d, nil
}

func (d *ChromedpDriver) tabCtx() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.root.Err() != nil {
		return nil, ErrBrowserClosed
	}
	t, ok := d.tabs[d.current]
	if !ok || t.ctx.Err() != nil {
		return nil, ErrBrowserClosed
	}
	return t.ctx, nil
}

func (d *ChromedpDriver) run(actions ...chromedp.Action) error {
	return d.runWithin(d.actionTimeout, actions...)
}

// runWithin 在当前标签页执行 actions，超过 timeout 返回 ErrActionTimeout
func (d *ChromedpDriver) runWithin(timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: no time left", ErrActionTimeout)
	}
	tab, err := d.tabCtx()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	if err := chromedp.Run(ctx, actions...); err != nil {
		switch {
		case d.root.Err() != nil || tab.Err() != nil:
			return fmt.Errorf("%w: %v", ErrBrowserClosed, err)
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: %v", ErrActionTimeout, err)
		case errors.Is(err, context.Canceled):
			return fmt.Errorf("%w: %v", ErrBrowserClosed, err)
		}
		return err
	}
	return nil
}

// callOnNode 以节点为 this 调用 JS 函数
func callOnNode(ctx context.Context, node *cdp.Node, fn string, res interface{}) error {
	obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return err
	}
	err = chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return p.WithObjectID(obj.ObjectID)
	}).Do(ctx)
	_ = runtime.ReleaseObject(obj.ObjectID).Do(ctx)
	return err
}

func (d *ChromedpDriver) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tab, err := d.tabCtx()
	if err != nil {
		return err
	}
	if d.navWait > 0 {
		var cancel context.CancelFunc
		tab, cancel = context.WithTimeout(tab, d.navWait)
		defer cancel()
	}
	return chromedp.Run(tab, chromedp.Navigate(target))
}

func (d *ChromedpDriver) CurrentURL() (string, error) {
	var u string
	err := d.run(chromedp.Location(&u))
	return u, err
}

func (d *ChromedpDriver) FindAll(loc Locator) ([]Element, error) {
	return d.query(loc.Value, chromedp.BySearch)
}

func (d *ChromedpDriver) query(sel string, opts ...chromedp.QueryOption) ([]Element, error) {
	var nodes []*cdp.Node
	opts = append(opts, chromedp.AtLeast(0))
	if err := d.run(chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{d: d, node: n})
	}
	return out, nil
}

func (d *ChromedpDriver) ExecuteScript(script string) (interface{}, error) {
	var res interface{}
	err := d.run(chromedp.Evaluate(script, &res))
	return res, err
}

func (d *ChromedpDriver) HTML() (string, error) {
	var html string
	err := d.run(chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (d *ChromedpDriver) Cookies() ([]model.Cookie, error) {
	var raw []*network.Cookie
	err := d.run(chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	cookies := make([]model.Cookie, 0, len(raw))
	for _, c := range raw {
		mc := model.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		}
		if !c.Session && c.Expires > 0 {
			mc.Expires = c.Expires
		}
		cookies = append(cookies, mc)
	}
	return cookies, nil
}

// AddCookies 注入 Cookie，绑定到当前页面地址
func (d *ChromedpDriver) AddCookies(cookies []model.Cookie) error {
	current, err := d.CurrentURL()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(current, "http") {
		return fmt.Errorf("当前页面无有效地址，无法注入Cookie: %q", current)
	}
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      current,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		switch c.SameSite {
		case "Strict", "Lax", "None":
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			t := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &t
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return nil
	}
	return d.run(network.SetCookies(params))
}

func (d *ChromedpDriver) Tabs() ([]string, error) {
	if d.root.Err() != nil {
		return nil, ErrBrowserClosed
	}
	ctx, cancel := context.WithTimeout(d.root, d.actionTimeout)
	defer cancel()
	infos, err := chromedp.Targets(ctx)
	if err != nil {
		if d.root.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrActionTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrBrowserClosed, err)
	}
	live := make(map[string]bool, len(infos))
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		id := string(info.TargetID)
		live[id] = true
		if _, ok := d.tabs[id]; !ok {
			ctx, cancel := chromedp.NewContext(d.root, chromedp.WithTargetID(info.TargetID))
			d.tabs[id] = &chromedpTab{ctx: ctx, cancel: cancel}
			d.order = append(d.order, id)
		}
	}
	kept := d.order[:0]
	for _, id := range d.order {
		if live[id] {
			kept = append(kept, id)
			continue
		}
		if id != d.rootID {
			d.tabs[id].cancel()
		}
		delete(d.tabs, id)
	}
	d.order = kept
	return append([]string(nil), d.order...), nil
}

func (d *ChromedpDriver) CurrentTab() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *ChromedpDriver) OpenTab(ctx context.Context, target string) (string, error) {
	if d.root.Err() != nil {
		return "", ErrBrowserClosed
	}
	tabCtx, cancel := chromedp.NewContext(d.root)
	actions := []chromedp.Action{}
	if target != "" {
		actions = append(actions, chromedp.Navigate(target))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cancel()
		return "", err
	}
	id := string(chromedp.FromContext(tabCtx).Target.TargetID)
	d.mu.Lock()
	d.tabs[id] = &chromedpTab{ctx: tabCtx, cancel: cancel}
	d.order = append(d.order, id)
	d.mu.Unlock()
	return id, ctx.Err()
}

func (d *ChromedpDriver) SwitchTab(handle string) error {
	if _, err := d.Tabs(); err != nil {
		return err
	}
	d.mu.Lock()
	t, ok := d.tabs[handle]
	if ok {
		d.current = handle
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, handle)
	}
	ctx, cancel := context.WithTimeout(t.ctx, d.actionTimeout)
	defer cancel()
	return chromedp.Run(ctx, page.BringToFront())
}

func (d *ChromedpDriver) CloseTab(handle string) error {
	d.mu.Lock()
	t, ok := d.tabs[handle]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, handle)
	}
	ctx, cancel := context.WithTimeout(t.ctx, d.actionTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, page.Close()); err != nil {
		return err
	}
	if handle != d.rootID {
		t.cancel()
	}
	d.mu.Lock()
	delete(d.tabs, handle)
	for i, id := range d.order {
		if id == handle {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	return nil
}

func (d *ChromedpDriver) Close() error {
	d.mu.Lock()
	for id, t := range d.tabs {
		if id != d.rootID {
			t.cancel()
		}
	}
	d.mu.Unlock()
	err := chromedp.Cancel(d.root)
	d.rootCancel()
	d.allocCancel()
	return err
}

type chromedpElement struct {
	d    *ChromedpDriver
	node *cdp.Node
}

func (e *chromedpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromedpElement) Text() (string, error) {
	var s string
	err := e.d.run(chromedp.Text(e.ids(), &s, chromedp.ByNodeID))
	return s, err
}

func (e *chromedpElement) Attribute(name string) (string, error) {
	var (
		v  string
		ok bool
	)
	err := e.d.run(chromedp.AttributeValue(e.ids(), name, &v, &ok, chromedp.ByNodeID))
	return v, err
}

func (e *chromedpElement) Visible() (bool, error) {
	var visible bool
	err := e.d.run(chromedp.ActionFunc(func(ctx context.Context) error {
		return callOnNode(ctx, e.node, visibleJS, &visible)
	}))
	return visible, err
}

func (e *chromedpElement) Click() error {
	return e.d.run(chromedp.MouseClickNode(e.node))
}

func (e *chromedpElement) ClickWithin(timeout time.Duration) error {
	return e.d.runWithin(timeout, chromedp.MouseClickNode(e.node))
}

func (e *chromedpElement) JSClick() error {
	return e.d.run(chromedp.ActionFunc(func(ctx context.Context) error {
		return callOnNode(ctx, e.node, `function() { this.click(); }`, nil)
	}))
}

func (e *chromedpElement) Clear() error {
	return e.d.run(chromedp.Clear(e.ids(), chromedp.ByNodeID))
}

func (e *chromedpElement) SendKeys(text string) error {
	return e.d.run(chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

// FindAll CSS 以当前节点为根查询；XPath 拼接到节点的绝对路径之后
func (e *chromedpElement) FindAll(loc Locator) ([]Element, error) {
	if loc.By == ByXPath {
		expr := strings.TrimPrefix(loc.Value, "./")
		if strings.HasPrefix(expr, "/") {
			expr = "descendant-or-self::node()" + expr
		}
		return e.d.query(e.node.FullXPath()+"/"+expr, chromedp.BySearch)
	}
	return e.d.query(loc.Value, chromedp.ByQueryAll, chromedp.FromNode(e.node))
}
