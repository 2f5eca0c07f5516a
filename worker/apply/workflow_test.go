package apply

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/repository"
	"easy_apply_go/service"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/browser/browsertest"
	"easy_apply_go/worker/form"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	homeURL   = "https://www.jobs.test/"
	searchURL = "https://www.jobs.test/search?q=go"
)

var testSelectors = Selectors{
	LoginIndicator:  browser.CSS(".user-menu"),
	AlreadyApplied:  browser.CSS(".applied-badge"),
	ApplyButton:     browser.CSS("button.apply"),
	SendApplication: browser.CSS("button.send"),
	RequiredLabels:  browser.XPath("//label[@class='required']"),
	SubmitButton:    browser.CSS("button.submit"),
	SuccessMarker:   browser.CSS("div.success"),
}

var testTimeouts = config.TimeoutConfig{
	Login:          50 * time.Millisecond,
	Element:        20 * time.Millisecond,
	ClickAttempts:  2,
	AttemptTimeout: 10 * time.Millisecond,
	PollInterval:   2 * time.Millisecond,
	SendButton:     10 * time.Millisecond,
	SuccessMarker:  20 * time.Millisecond,
	AlreadyApplied: 5 * time.Millisecond,
}

type fakePlatform struct {
	sel        Selectors
	listings   []Listing
	login      func(ctx context.Context, s *Session) error
	beforeOpen func(l Listing)
	loginCalls int
	closed     int
}

func (p *fakePlatform) Name() string { return "jobs" }
func (p *fakePlatform) HomeURL() string { return homeURL }
func (p *fakePlatform) Domain() string { return "jobs.test" }
func (p *fakePlatform) Selectors() Selectors { return p.sel }
func (p *fakePlatform) Prepare(context.Context, *Session) {}
func (p *fakePlatform) ConstructSearchURL(config.JobPreferences) string { return searchURL }
func (p *fakePlatform) DropdownAnswers() form.DropdownAnswers { return nil }

func (p *fakePlatform) Login(ctx context.Context, s *Session) error {
	p.loginCalls++
	if p.login != nil {
		return p.login(ctx, s)
	}
	return WaitForLogin(ctx, s, p.sel.LoginIndicator)
}

func (p *fakePlatform) FindCandidateListings(context.Context, *Session) ([]Listing, error) {
	return p.listings, nil
}

func (p *fakePlatform) OpenListing(ctx context.Context, s *Session, l Listing) error {
	if p.beforeOpen != nil {
		p.beforeOpen(l)
	}
	return OpenInNewTab(ctx, s, l)
}

func (p *fakePlatform) FieldMapping(profile model.ResumeProfile) form.FieldMapping {
	return form.FieldMapping{"Vorname": profile.PersonalInformation.Name}
}

type inPlacePlatform struct{ *fakePlatform }

func (p inPlacePlatform) CloseListing(context.Context, *Session) { p.closed++ }

type job struct {
	url            string
	title          string
	noEasyApply    bool
	noSuccess      bool
	formErrors     bool
	alreadyApplied bool
	redirectTo     string
}

type harness struct {
	t       *testing.T
	driver  *browsertest.Driver
	cookies *service.CookieService
	apps    *service.ApplicationService
	plat    *fakePlatform
	inputs  map[string]*browsertest.Element
	submits map[string]*browsertest.Element
}

func newHarness(t *testing.T, loggedIn bool) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		driver:  browsertest.NewDriver(),
		cookies: service.NewCookieService(repository.NewCookieRepository(t.TempDir())),
		apps:    service.NewApplicationService(nil),
		plat:    &fakePlatform{sel: testSelectors},
		inputs:  map[string]*browsertest.Element{},
		submits: map[string]*browsertest.Element{},
	}
	if loggedIn {
		src := browsertest.NewDriver()
		src.SetCookies([]model.Cookie{{Name: "session", Value: "ok", Domain: ".jobs.test"}})
		require.NoError(t, h.cookies.Save("jobs", src))
		h.driver.Page(homeURL).Add(testSelectors.LoginIndicator, browsertest.NewElement("Amir"))
	}
	return h
}

func (h *harness) addJob(j job) {
	page := h.driver.Page(j.url)
	listing := Listing{Index: len(h.plat.listings), Title: j.title, URL: j.url, EasyApply: !j.noEasyApply}
	h.plat.listings = append(h.plat.listings, listing)

	if j.alreadyApplied {
		page.Add(testSelectors.AlreadyApplied, browsertest.NewElement("Beworben"))
	}
	if j.formErrors {
		page.SetHTML(`<form><span class="error">Pflichtfeld</span></form>`)
	}

	input := browsertest.NewElement("")
	h.inputs[j.url] = input
	label := browsertest.NewElement("Vorname").WithChild(form.FollowingInput, input)
	submit := browsertest.NewElement("Absenden")
	h.submits[j.url] = submit
	if !j.noSuccess {
		submit.OnClick = func() { page.Add(testSelectors.SuccessMarker, browsertest.NewElement("Danke")) }
	}

	send := browsertest.NewElement("Bewerbung senden")
	send.OnClick = func() {
		page.Add(testSelectors.RequiredLabels, label)
		page.Add(testSelectors.SubmitButton, submit)
	}
	apply := browsertest.NewElement("Easy apply")
	apply.OnClick = func() {
		if j.redirectTo != "" {
			h.driver.Redirect(j.redirectTo)
			return
		}
		page.Add(testSelectors.SendApplication, send)
	}
	page.Add(testSelectors.ApplyButton, apply)
}

func (h *harness) run(opts Options) (*RunResult, error) {
	sess := NewSession(h.driver, config.JobPreferences{JobTitle: "Go", TitleBlacklist: []string{"Senior"}}, config.Secrets{}, testTimeouts, nil)
	profile := model.ResumeProfile{PersonalInformation: model.PersonalInformation{Name: "Amir"}}
	return New(h.plat, sess, h.cookies, h.apps, profile, opts).Run(context.Background())
}

func (h *harness) assertSingleTab() {
	h.t.Helper()
	tabs, err := h.driver.Tabs()
	require.NoError(h.t, err)
	assert.Len(h.t, tabs, 1)
	assert.Equal(h.t, tabs[0], h.driver.CurrentTab())
}

func TestRun_NoCookieFileNeedsLogin(t *testing.T) {
	h := newHarness(t, false)
	assert.False(t, h.cookies.HasSession("jobs"))

	res, err := h.run(Options{})
	assert.ErrorIs(t, err, ErrSessionRequired)
	assert.Equal(t, 1, h.plat.loginCalls)
	assert.Equal(t, []State{StateIdle, StateSessionCheck, StateNeedsLogin, StateDone}, res.Transitions)
	assert.Empty(t, res.Records)
}

func TestRun_LoginSavesSession(t *testing.T) {
	h := newHarness(t, false)
	h.plat.login = func(ctx context.Context, s *Session) error {
		h.driver.SetCookies([]model.Cookie{{Name: "session", Value: "fresh"}})
		h.driver.Page(homeURL).Add(testSelectors.LoginIndicator, browsertest.NewElement("Amir"))
		return WaitForLogin(ctx, s, testSelectors.LoginIndicator)
	}

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Contains(t, res.Transitions, StateNeedsLogin)
	assert.Contains(t, res.Transitions, StateLoggedIn)
	assert.True(t, h.cookies.HasSession("jobs"))
}

func TestRun_ValidCookiesSkipLogin(t *testing.T) {
	h := newHarness(t, true)

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, h.plat.loginCalls)
	assert.Equal(t, []State{StateIdle, StateSessionCheck, StateLoggedIn, StateSearchNavigated, StateListingEnumerated, StateDone}, res.Transitions)
	require.NotEmpty(t, h.driver.Injected)
	assert.Equal(t, "www.jobs.test", h.driver.Injected[0].Domain)
}

func TestRun_StaleCookiesFallBackToLogin(t *testing.T) {
	h := newHarness(t, true)
	h.driver.Page(homeURL).Remove(testSelectors.LoginIndicator)

	_, err := h.run(Options{})
	assert.ErrorIs(t, err, ErrSessionRequired)
	assert.Equal(t, 1, h.plat.loginCalls)
}

func TestRun_ListingOutcomes(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Engineer", noSuccess: true})
	h.addJob(job{url: "https://careers.example.org/job/3", title: "Backend"})
	h.addJob(job{url: "https://www.jobs.test/job/4", title: "Platform Engineer", alreadyApplied: true})
	h.addJob(job{url: "https://www.jobs.test/job/5", title: "Senior Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/6", title: "Go Developer", noEasyApply: true})
	h.addJob(job{url: "https://www.jobs.test/job/7", title: "Go Developer", formErrors: true})
	h.addJob(job{url: "https://www.jobs.test/job/8", title: "Go Developer", redirectTo: "https://ats.example.com/apply"})

	res, err := h.run(Options{})
	require.NoError(t, err)

	want := []Outcome{
		OutcomeSubmitted,
		OutcomeIncomplete,
		OutcomeOffDomain,
		OutcomeAlreadyApplied,
		OutcomeIneligible,
		OutcomeNoEasyApply,
		OutcomeFormInvalid,
		OutcomeOffDomain,
	}
	require.Len(t, res.Listings, len(want))
	for i, o := range want {
		assert.Equal(t, o, res.Listings[i].Outcome, "listing %d", i+1)
	}

	require.Len(t, res.Records, 1)
	assert.Equal(t, "https://www.jobs.test/job/1", res.Records[0].JobURL)
	assert.Equal(t, "jobs", res.Records[0].Platform)
	assert.Equal(t, 1, h.apps.Count())

	assert.Equal(t, "Amir", h.inputs["https://www.jobs.test/job/1"].Value)
	assert.Equal(t, 0, h.submits["https://www.jobs.test/job/7"].Clicks, "submission withheld on form errors")
	assert.Equal(t, 8, countState(res, StateClosed))
	h.assertSingleTab()
}

func TestRun_SuccessMarkerMissingIsIncomplete(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer", noSuccess: true})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIncomplete, res.Listings[0].Outcome)
	assert.Equal(t, OutcomeSubmitted, res.Listings[1].Outcome)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "https://www.jobs.test/job/2", res.Records[0].JobURL)
	h.assertSingleTab()
}

func TestRun_AlreadyAppliedFromHistory(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.apps.Record(model.ApplicationRecord{Platform: "jobs", JobURL: "https://www.jobs.test/job/1"})

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyApplied, res.Listings[0].Outcome)
	assert.Empty(t, res.Records)
}

func TestRun_PanicInListingIsContained(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})
	h.plat.beforeOpen = func(l Listing) {
		if l.Index == 0 {
			_, _ = h.driver.OpenTab(context.Background(), "https://www.jobs.test/leaked")
			panic("selector exploded")
		}
	}

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Listings[0].Outcome)
	assert.Equal(t, "selector exploded", res.Listings[0].Err)
	assert.Equal(t, OutcomeSubmitted, res.Listings[1].Outcome)
	h.assertSingleTab()
}

func TestRun_TabCountRestoredAfterEveryListing(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://careers.example.org/job/2", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/3", title: "Senior Go"})

	var counts []int
	h.plat.beforeOpen = func(Listing) {
		tabs, _ := h.driver.Tabs()
		counts = append(counts, len(tabs))
	}
	_, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, counts)
	h.assertSingleTab()
}

func TestRun_StopSignalBetweenListings(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/3", title: "Go Developer"})

	processed := 0
	h.plat.beforeOpen = func(Listing) { processed++ }
	res, err := h.run(Options{ShouldStop: func() bool { return processed >= 1 }})
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Len(t, res.Listings, 1)
}

func TestRun_BrowserCrashAbortsRun(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})
	h.plat.beforeOpen = func(Listing) { h.driver.Crash() }

	res, err := h.run(Options{})
	assert.True(t, errors.Is(err, browser.ErrBrowserClosed))
	assert.Len(t, res.Listings, 1)
	assert.Equal(t, StateDone, res.Transitions[len(res.Transitions)-1])
}

func TestRun_TabListingErrorSkipsOnlyThatListing(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFatal bool
		listings  int
	}{
		{name: "transient", err: fmt.Errorf("%w: targets", browser.ErrActionTimeout), listings: 2},
		{name: "closed", err: browser.ErrBrowserClosed, wantFatal: true, listings: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
			h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})
			h.driver.TabsErrs = []error{tt.err}

			res, err := h.run(Options{})
			if tt.wantFatal {
				assert.True(t, errors.Is(err, browser.ErrBrowserClosed))
			} else {
				require.NoError(t, err)
			}
			require.Len(t, res.Listings, tt.listings)
			assert.Equal(t, OutcomeFailed, res.Listings[0].Outcome)
			assert.Equal(t, "open", res.Listings[0].Step)
			if !tt.wantFatal {
				assert.Equal(t, OutcomeSubmitted, res.Listings[1].Outcome)
				h.assertSingleTab()
			}
		})
	}
}

func TestRun_CancelFinishesCurrentListing(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.plat.beforeOpen = func(Listing) { cancel() }

	sess := NewSession(h.driver, config.JobPreferences{JobTitle: "Go"}, config.Secrets{}, testTimeouts, nil)
	profile := model.ResumeProfile{PersonalInformation: model.PersonalInformation{Name: "Amir"}}
	res, err := New(h.plat, sess, h.cookies, h.apps, profile, Options{}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	require.Len(t, res.Listings, 1)
	assert.Equal(t, OutcomeSubmitted, res.Listings[0].Outcome)
	assert.Equal(t, "Amir", h.inputs["https://www.jobs.test/job/1"].Value)
	h.assertSingleTab()
}

func TestRun_ApplyButtonText(t *testing.T) {
	h := newHarness(t, true)
	h.plat.sel.ApplyButtonText = "Easy apply"
	h.plat.sel.AppliedButtonText = "Already applied"
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/3", title: "Go Developer"})

	h.driver.Page("https://www.jobs.test/job/2").Elements[testSelectors.ApplyButton.String()][0].Content = "Apply on company site"
	h.driver.Page("https://www.jobs.test/job/3").Elements[testSelectors.ApplyButton.String()][0].Content = "already applied"

	res, err := h.run(Options{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSubmitted, res.Listings[0].Outcome)
	assert.Equal(t, OutcomeNoEasyApply, res.Listings[1].Outcome)
	assert.Equal(t, OutcomeAlreadyApplied, res.Listings[2].Outcome)
}

func TestRun_InPlaceListingsAreClosed(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})
	h.addJob(job{url: "https://www.jobs.test/job/2", title: "Senior Go Developer"})

	plat := inPlacePlatform{h.plat}
	sess := NewSession(h.driver, config.JobPreferences{TitleBlacklist: []string{"Senior"}}, config.Secrets{}, testTimeouts, nil)
	_, err := New(plat, sess, h.cookies, h.apps, model.ResumeProfile{}, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.plat.closed)
}

func TestRun_ProgressAndRunID(t *testing.T) {
	h := newHarness(t, true)
	h.addJob(job{url: "https://www.jobs.test/job/1", title: "Go Developer"})

	var msgs []string
	res, err := h.run(Options{RunID: "run-1", OnProgress: func(m string) { msgs = append(msgs, m) }})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.NotEmpty(t, msgs)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestOnDomain(t *testing.T) {
	tests := []struct {
		url, domain string
		want        bool
	}{
		{"https://www.xing.com/jobs/1", "xing.com", true},
		{"https://xing.com/", "xing.com", true},
		{"https://login.xing.com/", "xing.com", true},
		{"https://notxing.com/", "xing.com", false},
		{"https://xing.com.evil.io/", "xing.com", false},
		{"https://www.stepstone.de/stellenangebote--x", "stepstone.de", true},
		{"https://company.softgarden.io/apply", "stepstone.de", false},
		{"::bad", "xing.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OnDomain(tt.url, tt.domain), tt.url)
	}
}

func countState(r *RunResult, s State) int {
	n := 0
	for _, st := range r.Transitions {
		if st == s {
			n++
		}
	}
	return n
}
