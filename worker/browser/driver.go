// Package browser abstracts the browser automation engine behind a small
// Driver interface. Two engines are provided: playwright (default) and
// chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"easy_apply_go/model"
)

var (
	// ErrBrowserClosed the engine or its process is gone; a run cannot continue.
	ErrBrowserClosed = errors.New("browser closed")
	// ErrNoSuchTab 标签页不存在
	ErrNoSuchTab = errors.New("no such tab")
	// ErrUnknownEngine 未知浏览器引擎
	ErrUnknownEngine = errors.New("unknown browser engine")
	// ErrActionTimeout 单次元素操作超时，可以重试
	ErrActionTimeout = errors.New("browser action timed out")
)

// Strategy 元素定位方式
type Strategy int

const (
	ByCSS Strategy = iota
	ByXPath
)

// Locator 元素定位表达式
type Locator struct {
	By    Strategy
	Value string
}

// CSS 创建 CSS 定位器
func CSS(selector string) Locator {
	return Locator{By: ByCSS, Value: selector}
}

// XPath 创建 XPath 定位器
func XPath(expr string) Locator {
	return Locator{By: ByXPath, Value: expr}
}

// IsZero reports whether the locator was left unset.
func (l Locator) IsZero() bool {
	return l.Value == ""
}

// String renders the locator in playwright selector syntax.
func (l Locator) String() string {
	if l.By == ByXPath {
		return "xpath=" + l.Value
	}
	return "css=" + l.Value
}

// XPathLiteral quotes s for use inside an XPath expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

// Element is a handle to one DOM node. Handles go stale when the page
// re-renders; every method may then return an error.
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, error)
	Visible() (bool, error)
	Click() error
	// ClickWithin clicks, giving up with ErrActionTimeout after timeout.
	ClickWithin(timeout time.Duration) error
	// JSClick dispatches a script-level click, bypassing overlays.
	JSClick() error
	Clear() error
	SendKeys(text string) error
	// FindAll resolves loc relative to this element.
	FindAll(loc Locator) ([]Element, error)
}

// Driver is the capability set consumed from the browser engine.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL() (string, error)
	FindAll(loc Locator) ([]Element, error)
	ExecuteScript(script string) (interface{}, error)
	// HTML returns the current document markup.
	HTML() (string, error)

	Cookies() ([]model.Cookie, error)
	// AddCookies injects cookies scoped to the current page origin.
	AddCookies(cookies []model.Cookie) error

	Tabs() ([]string, error)
	CurrentTab() string
	// OpenTab opens url in a new tab and returns its handle without switching.
	OpenTab(ctx context.Context, url string) (string, error)
	SwitchTab(handle string) error
	CloseTab(handle string) error

	Close() error
}

// Options 浏览器启动参数
type Options struct {
	Engine          string
	Headless        bool
	WindowWidth     int
	WindowHeight    int
	UserDataDir     string
	ActionTimeoutMs float64
	NavigationMs    float64
}

// Factory starts a fresh browser session.
type Factory func(ctx context.Context, opts Options) (Driver, error)

// New 根据引擎名称启动浏览器
func New(ctx context.Context, opts Options) (Driver, error) {
	switch opts.Engine {
	case "", "playwright":
		return NewPlaywrightDriver(opts)
	case "chromedp":
		return NewChromedpDriver(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, opts.Engine)
	}
}
