package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/browser/browsertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	buttonLoc = browser.CSS("button.apply")
	inputLoc  = browser.XPath("//input[@name='email']")
)

func newInteractor(d browser.Driver) *Interactor {
	return New(d, Options{Attempts: 3, AttemptTimeout: 40 * time.Millisecond, PollInterval: 5 * time.Millisecond}, nil)
}

func openPage(t *testing.T, d *browsertest.Driver, url string) *browsertest.Page {
	t.Helper()
	require.NoError(t, d.Navigate(context.Background(), url))
	return d.Page(url)
}

func TestWaitFor(t *testing.T) {
	d := browsertest.NewDriver()
	page := openPage(t, d, "https://www.xing.com/jobs")
	ix := newInteractor(d)

	_, err := ix.WaitFor(context.Background(), buttonLoc, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)

	btn := browsertest.NewElement("Easy apply")
	page.Add(buttonLoc, btn)
	el, err := ix.WaitFor(context.Background(), buttonLoc, 20*time.Millisecond)
	require.NoError(t, err)
	text, _ := el.Text()
	assert.Equal(t, "Easy apply", text)
}

func TestWaitFor_ElementAppearsLater(t *testing.T) {
	d := browsertest.NewDriver()
	page := openPage(t, d, "https://www.xing.com/jobs")
	ix := newInteractor(d)

	go func() {
		time.Sleep(15 * time.Millisecond)
		page.Add(buttonLoc, browsertest.NewElement("late"))
	}()
	_, err := ix.WaitFor(context.Background(), buttonLoc, time.Second)
	assert.NoError(t, err)
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	d := browsertest.NewDriver()
	openPage(t, d, "https://www.xing.com/jobs")
	ix := newInteractor(d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ix.WaitFor(ctx, buttonLoc, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitFor_BrowserClosedStopsPolling(t *testing.T) {
	d := browsertest.NewDriver()
	openPage(t, d, "https://www.xing.com/jobs")
	d.Crash()
	ix := newInteractor(d)

	start := time.Now()
	_, err := ix.WaitFor(context.Background(), buttonLoc, time.Second)
	assert.ErrorIs(t, err, browser.ErrBrowserClosed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestWaitVisible_SkipsHidden(t *testing.T) {
	d := browsertest.NewDriver()
	page := openPage(t, d, "https://www.xing.com/jobs")
	hidden := browsertest.NewElement("hidden")
	hidden.Hidden = true
	shown := browsertest.NewElement("shown")
	page.Add(buttonLoc, hidden, shown)

	el, err := newInteractor(d).WaitVisible(context.Background(), buttonLoc, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, shown, el)
}

func TestClick(t *testing.T) {
	stale := errors.New("stale element reference")

	tests := []struct {
		name       string
		clickErrs  []error
		present    bool
		want       bool
		wantClicks int
		wantLeft   int
	}{
		{name: "first attempt", present: true, want: true, wantClicks: 1},
		{name: "recovers after stale", clickErrs: []error{stale, stale}, present: true, want: true, wantClicks: 1},
		{name: "exhausts attempt cap", clickErrs: []error{stale, stale, stale, stale, stale}, present: true, want: false, wantLeft: 2},
		{name: "missing element", present: false, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := browsertest.NewDriver()
			page := openPage(t, d, "https://www.stepstone.de/jobs")
			btn := browsertest.NewElement("Apply")
			btn.ClickErrs = tt.clickErrs
			if tt.present {
				page.Add(buttonLoc, btn)
			}

			got := newInteractor(d).Click(context.Background(), buttonLoc, 3, 40*time.Millisecond)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantClicks, btn.Clicks)
			assert.Len(t, btn.ClickErrs, tt.wantLeft)
		})
	}
}

func TestClick_BlockingIsBounded(t *testing.T) {
	d := browsertest.NewDriver()
	openPage(t, d, "https://www.stepstone.de/jobs")
	ix := newInteractor(d)

	attempts, per := 3, 30*time.Millisecond
	start := time.Now()
	assert.False(t, ix.Click(context.Background(), buttonLoc, attempts, per))
	assert.Less(t, time.Since(start), time.Duration(attempts)*per+100*time.Millisecond)
}

func TestClick_SlowClickIsBounded(t *testing.T) {
	d := browsertest.NewDriver()
	btn := browsertest.NewElement("Apply")
	btn.ClickDelay = 200 * time.Millisecond
	openPage(t, d, "https://www.stepstone.de/jobs").Add(buttonLoc, btn)
	ix := newInteractor(d)

	attempts, per := 3, 50*time.Millisecond
	start := time.Now()
	assert.False(t, ix.Click(context.Background(), buttonLoc, attempts, per))
	assert.Less(t, time.Since(start), time.Duration(attempts)*per+100*time.Millisecond)
	assert.Equal(t, 0, btn.Clicks)
}

func TestClickElement_SlowClickUsesAttemptTimeout(t *testing.T) {
	d := browsertest.NewDriver()
	btn := browsertest.NewElement("Send")
	btn.ClickDelay = 10 * time.Millisecond
	openPage(t, d, "https://www.xing.com/apply").Add(buttonLoc, btn)

	assert.True(t, newInteractor(d).ClickElement(btn), "a click faster than the attempt timeout lands")
	assert.Equal(t, 1, btn.Clicks)

	btn.ClickDelay = time.Second
	start := time.Now()
	assert.False(t, newInteractor(d).ClickElement(btn))
	assert.Less(t, time.Since(start), 3*40*time.Millisecond+100*time.Millisecond)
}

func TestClickWithJSFallback(t *testing.T) {
	intercepted := errors.New("element click intercepted")

	t.Run("native click", func(t *testing.T) {
		d := browsertest.NewDriver()
		btn := browsertest.NewElement("Send")
		openPage(t, d, "https://www.xing.com/apply").Add(buttonLoc, btn)

		assert.True(t, newInteractor(d).ClickWithJSFallback(context.Background(), buttonLoc, 20*time.Millisecond))
		assert.Equal(t, 1, btn.Clicks)
		assert.Equal(t, 0, btn.JSClicks)
	})

	t.Run("falls back to script click", func(t *testing.T) {
		d := browsertest.NewDriver()
		btn := browsertest.NewElement("Send")
		btn.ClickErrs = []error{intercepted}
		openPage(t, d, "https://www.xing.com/apply").Add(buttonLoc, btn)

		assert.True(t, newInteractor(d).ClickWithJSFallback(context.Background(), buttonLoc, 20*time.Millisecond))
		assert.Equal(t, 0, btn.Clicks)
		assert.Equal(t, 1, btn.JSClicks)
	})

	t.Run("both fail", func(t *testing.T) {
		d := browsertest.NewDriver()
		btn := browsertest.NewElement("Send")
		btn.ClickErrs = []error{intercepted}
		btn.JSClickErr = errors.New("script error")
		openPage(t, d, "https://www.xing.com/apply").Add(buttonLoc, btn)

		assert.False(t, newInteractor(d).ClickWithJSFallback(context.Background(), buttonLoc, 20*time.Millisecond))
	})

	t.Run("missing", func(t *testing.T) {
		d := browsertest.NewDriver()
		openPage(t, d, "https://www.xing.com/apply")
		assert.False(t, newInteractor(d).ClickWithJSFallback(context.Background(), buttonLoc, 20*time.Millisecond))
	})
}

func TestFill(t *testing.T) {
	d := browsertest.NewDriver()
	input := browsertest.NewElement("")
	input.Value = "old@example.com"
	openPage(t, d, "https://www.linkedin.com/jobs").Add(inputLoc, input)

	require.NoError(t, newInteractor(d).Fill(context.Background(), inputLoc, "amir@example.com"))
	assert.Equal(t, "amir@example.com", input.Value)
	assert.Equal(t, 1, input.Clears)
}

func TestRestoreTabs(t *testing.T) {
	d := browsertest.NewDriver()
	ix := newInteractor(d)
	origin := d.CurrentTab()
	before, err := d.Tabs()
	require.NoError(t, err)

	_, err = d.OpenTab(context.Background(), "https://www.xing.com/jobs/1")
	require.NoError(t, err)
	second, err := d.OpenTab(context.Background(), "https://www.xing.com/jobs/2")
	require.NoError(t, err)

	newest, ok := ix.NewestTab(before)
	require.True(t, ok)
	assert.Equal(t, second, newest)
	require.NoError(t, ix.SwitchTab(newest))

	require.NoError(t, ix.RestoreTabs(origin, before))
	tabs, err := d.Tabs()
	require.NoError(t, err)
	assert.Equal(t, before, tabs)
	assert.Equal(t, origin, d.CurrentTab())
}

func TestWaitNewTab(t *testing.T) {
	d := browsertest.NewDriver()
	ix := newInteractor(d)
	before, _ := d.Tabs()

	_, err := ix.WaitNewTab(context.Background(), before, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)

	opened, _ := d.OpenTab(context.Background(), "https://www.stepstone.de/stellenangebote--1")
	got, err := ix.WaitNewTab(context.Background(), before, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, opened, got)
}
