// Package browsertest provides a scripted in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"easy_apply_go/model"
	"easy_apply_go/worker/browser"
)

// ErrNotInteractable is returned when clicking or typing into a hidden element.
var ErrNotInteractable = errors.New("element not interactable")

// Element is a scripted DOM node.
type Element struct {
	mu sync.Mutex

	Content  string
	Attrs    map[string]string
	Hidden   bool
	Detached bool
	Children map[string][]*Element

	// ClickErrs are returned by successive Click calls before clicks succeed.
	ClickErrs  []error
	JSClickErr error
	OnClick    func()
	// ClickDelay is how long a native click takes to land.
	ClickDelay time.Duration

	Value    string
	Clicks   int
	JSClicks int
	Clears   int
	Typed    []string
}

// NewElement returns a visible element with the given text.
func NewElement(text string) *Element {
	return &Element{Content: text, Attrs: map[string]string{}, Children: map[string][]*Element{}}
}

// WithAttr sets an attribute and returns e.
func (e *Element) WithAttr(name, value string) *Element {
	e.Attrs[name] = value
	return e
}

// WithChild registers children resolvable from e by loc.
func (e *Element) WithChild(loc browser.Locator, children ...*Element) *Element {
	e.Children[loc.String()] = append(e.Children[loc.String()], children...)
	return e
}

func (e *Element) stale() error {
	if e.Detached {
		return errors.New("stale element reference")
	}
	return nil
}

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, e.stale()
}

func (e *Element) Attribute(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return "", err
	}
	if name == "value" {
		return e.Value, nil
	}
	return e.Attrs[name], nil
}

func (e *Element) Visible() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Hidden, e.stale()
}

func (e *Element) Click() error {
	e.mu.Lock()
	delay := e.ClickDelay
	e.mu.Unlock()
	time.Sleep(delay)
	return e.click()
}

// ClickWithin gives up with browser.ErrActionTimeout when ClickDelay exceeds timeout.
func (e *Element) ClickWithin(timeout time.Duration) error {
	e.mu.Lock()
	delay := e.ClickDelay
	e.mu.Unlock()
	if delay > 0 && delay > timeout {
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return fmt.Errorf("%w: click took longer than %s", browser.ErrActionTimeout, timeout)
	}
	time.Sleep(delay)
	return e.click()
}

func (e *Element) click() error {
	e.mu.Lock()
	if err := e.stale(); err != nil {
		e.mu.Unlock()
		return err
	}
	if len(e.ClickErrs) > 0 {
		err := e.ClickErrs[0]
		e.ClickErrs = e.ClickErrs[1:]
		e.mu.Unlock()
		return err
	}
	if e.Hidden {
		e.mu.Unlock()
		return ErrNotInteractable
	}
	e.Clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) JSClick() error {
	e.mu.Lock()
	if err := e.stale(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.JSClickErr != nil {
		e.mu.Unlock()
		return e.JSClickErr
	}
	e.JSClicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	e.Clears++
	e.Value = ""
	return nil
}

func (e *Element) SendKeys(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return err
	}
	if e.Hidden {
		return ErrNotInteractable
	}
	e.Typed = append(e.Typed, text)
	e.Value += text
	return nil
}

func (e *Element) FindAll(loc browser.Locator) ([]browser.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.stale(); err != nil {
		return nil, err
	}
	return toElements(e.Children[loc.String()]), nil
}

// ClickCount returns the number of native plus script clicks.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks + e.JSClicks
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out
}

// Page is a scripted document.
type Page struct {
	mu       sync.Mutex
	URL      string
	HTML     string
	Elements map[string][]*Element
}

// Add registers elements resolvable by loc.
func (p *Page) Add(loc browser.Locator, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Elements[loc.String()] = append(p.Elements[loc.String()], els...)
	return p
}

// Remove drops every element registered under loc.
func (p *Page) Remove(loc browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Elements, loc.String())
}

// SetHTML replaces the document markup.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HTML = html
}

func (p *Page) find(loc browser.Locator) []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Element(nil), p.Elements[loc.String()]...)
}

type tab struct {
	id   string
	page *Page
}

// Driver is an in-memory browser.Driver.
type Driver struct {
	mu sync.Mutex

	pages   map[string]*Page
	tabs    []*tab
	current string
	nextTab int
	closed  bool

	cookies []model.Cookie

	// NavigateErr, when set, fails every navigation.
	NavigateErr error
	// TabsErrs are returned by successive Tabs calls before listing succeeds.
	TabsErrs    []error
	Navigations []string
	Scripts     []string
	Injected    []model.Cookie
	Closes      int
}

// NewDriver returns a driver with one blank tab.
func NewDriver() *Driver {
	d := &Driver{pages: map[string]*Page{}}
	d.current = d.newTab(d.Page("about:blank"))
	return d
}

// Page returns the page served at u, creating an empty one if needed.
func (d *Driver) Page(u string) *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageLocked(u)
}

func (d *Driver) pageLocked(u string) *Page {
	p, ok := d.pages[u]
	if !ok {
		p = &Page{URL: u, Elements: map[string][]*Element{}}
		d.pages[u] = p
	}
	return p
}

func (d *Driver) newTab(p *Page) string {
	d.nextTab++
	id := fmt.Sprintf("tab-%d", d.nextTab)
	d.tabs = append(d.tabs, &tab{id: id, page: p})
	return id
}

// SetCookies replaces the browser cookie jar.
func (d *Driver) SetCookies(cookies []model.Cookie) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = append([]model.Cookie(nil), cookies...)
}

// Crash makes every subsequent call fail with browser.ErrBrowserClosed.
func (d *Driver) Crash() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// IsClosed reports whether Close or Crash was called.
func (d *Driver) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) currentTab() (*tab, error) {
	if d.closed {
		return nil, browser.ErrBrowserClosed
	}
	for _, t := range d.tabs {
		if t.id == d.current {
			return t, nil
		}
	}
	return nil, browser.ErrBrowserClosed
}

func (d *Driver) Navigate(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.currentTab()
	if err != nil {
		return err
	}
	d.Navigations = append(d.Navigations, u)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	t.page = d.pageLocked(u)
	return nil
}

// Redirect points the current tab at u without recording a navigation.
func (d *Driver) Redirect(u string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, err := d.currentTab(); err == nil {
		t.page = d.pageLocked(u)
	}
}

func (d *Driver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.currentTab()
	if err != nil {
		return "", err
	}
	return t.page.URL, nil
}

func (d *Driver) FindAll(loc browser.Locator) ([]browser.Element, error) {
	d.mu.Lock()
	t, err := d.currentTab()
	var p *Page
	if err == nil {
		p = t.page
	}
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return toElements(p.find(loc)), nil
}

func (d *Driver) ExecuteScript(script string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.currentTab(); err != nil {
		return nil, err
	}
	d.Scripts = append(d.Scripts, script)
	return nil, nil
}

func (d *Driver) HTML() (string, error) {
	d.mu.Lock()
	t, err := d.currentTab()
	var p *Page
	if err == nil {
		p = t.page
	}
	d.mu.Unlock()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HTML, nil
}

func (d *Driver) Cookies() ([]model.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, browser.ErrBrowserClosed
	}
	return append([]model.Cookie(nil), d.cookies...), nil
}

// AddCookies scopes each cookie to the current page host, like the real engines.
func (d *Driver) AddCookies(cookies []model.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.currentTab()
	if err != nil {
		return err
	}
	u, err := url.Parse(t.page.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("cannot add cookies on %q", t.page.URL)
	}
	for _, c := range cookies {
		c.Domain = u.Hostname()
		c.Path = "/"
		d.Injected = append(d.Injected, c)
		d.cookies = append(d.cookies, c)
	}
	return nil
}

func (d *Driver) Tabs() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, browser.ErrBrowserClosed
	}
	if len(d.TabsErrs) > 0 {
		err := d.TabsErrs[0]
		d.TabsErrs = d.TabsErrs[1:]
		return nil, err
	}
	ids := make([]string, 0, len(d.tabs))
	for _, t := range d.tabs {
		ids = append(ids, t.id)
	}
	return ids, nil
}

func (d *Driver) CurrentTab() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Driver) OpenTab(ctx context.Context, u string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return "", browser.ErrBrowserClosed
	}
	if u == "" {
		u = "about:blank"
	}
	return d.newTab(d.pageLocked(u)), ctx.Err()
}

func (d *Driver) SwitchTab(handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ErrBrowserClosed
	}
	for _, t := range d.tabs {
		if t.id == handle {
			d.current = handle
			return nil
		}
	}
	return fmt.Errorf("%w: %s", browser.ErrNoSuchTab, handle)
}

func (d *Driver) CloseTab(handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ErrBrowserClosed
	}
	for i, t := range d.tabs {
		if t.id == handle {
			d.tabs = append(d.tabs[:i], d.tabs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", browser.ErrNoSuchTab, handle)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.Closes++
	return nil
}

var _ browser.Driver = (*Driver)(nil)
var _ browser.Element = (*Element)(nil)
