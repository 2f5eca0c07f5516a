// Package apply implements the per-platform apply workflow. It is written
// once against the Platform interface; adapters live in sibling packages.
package apply

import (
	"context"
	"errors"
	"time"

	"easy_apply_go/config"
	"easy_apply_go/model"
	"easy_apply_go/worker/browser"
	"easy_apply_go/worker/form"
	"easy_apply_go/worker/interact"

	log "github.com/sirupsen/logrus"
)

// ErrSessionRequired 会话建立失败，需要重新手动登录
var ErrSessionRequired = errors.New("login required")

// State 投递流程状态
type State string

const (
	StateIdle               State = "Idle"
	StateSessionCheck       State = "SessionCheck"
	StateLoggedIn           State = "LoggedIn"
	StateNeedsLogin         State = "NeedsLogin"
	StateSearchNavigated    State = "SearchNavigated"
	StateListingEnumerated  State = "ListingEnumerated"
	StateOpened             State = "Opened"
	StateEligibilityChecked State = "EligibilityChecked"
	StateApplying           State = "Applying"
	StateOutcomeClassified  State = "OutcomeClassified"
	StateClosed             State = "Closed"
	StateDone               State = "Done"
)

// Outcome 单个职位的处理结果
type Outcome string

const (
	OutcomeSubmitted      Outcome = "submitted"
	OutcomeIncomplete     Outcome = "incomplete"
	OutcomeFormInvalid    Outcome = "form_invalid"
	OutcomeOffDomain      Outcome = "skipped_off_domain"
	OutcomeAlreadyApplied Outcome = "skipped_already_applied"
	OutcomeIneligible     Outcome = "skipped_ineligible"
	OutcomeNoEasyApply    Outcome = "skipped_no_easy_apply"
	OutcomeFailed         Outcome = "failed"
)

// Selectors 平台页面选择器。零值 Locator 表示该平台没有此控件
type Selectors struct {
	LoginIndicator browser.Locator

	// AlreadyApplied is a DOM marker on the listing page.
	AlreadyApplied browser.Locator
	ApplyButton    browser.Locator
	// ApplyButtonText, when set, must be contained in the apply button label.
	ApplyButtonText string
	// AppliedButtonText marks a listing as already applied when it equals the button label.
	AppliedButtonText string

	SendApplication browser.Locator
	RequiredLabels  browser.Locator
	FormErrors      string
	SubmitButton    browser.Locator
	SuccessMarker   browser.Locator
}

// Listing 职位句柄，只在当前职位的处理过程中有效
type Listing struct {
	Index     int
	Title     string
	URL       string
	EasyApply bool
	Element   browser.Element
}

// Session 一次运行中共享的浏览器会话
type Session struct {
	Driver   browser.Driver
	Interact *interact.Interactor
	Prefs    config.JobPreferences
	Secrets  config.Secrets
	Timeouts config.TimeoutConfig
	Log      *log.Entry
}

// NewSession 创建会话，interactor 的重试参数取自 timeouts
func NewSession(driver browser.Driver, prefs config.JobPreferences, secrets config.Secrets, timeouts config.TimeoutConfig, entry *log.Entry) *Session {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	ix := interact.New(driver, interact.Options{
		Attempts:       timeouts.ClickAttempts,
		AttemptTimeout: timeouts.AttemptTimeout,
		PollInterval:   timeouts.PollInterval,
	}, entry)
	return &Session{
		Driver:   driver,
		Interact: ix,
		Prefs:    prefs,
		Secrets:  secrets,
		Timeouts: timeouts,
		Log:      entry,
	}
}

// Platform 平台适配器需要实现的能力
type Platform interface {
	Name() string
	HomeURL() string
	// Domain is the registrable domain listings must stay on, e.g. "xing.com".
	Domain() string
	Selectors() Selectors
	// Login blocks until the login indicator appears or ctx ends.
	Login(ctx context.Context, s *Session) error
	// Prepare runs after the search page loads, e.g. to accept a cookie banner.
	Prepare(ctx context.Context, s *Session)
	ConstructSearchURL(prefs config.JobPreferences) string
	FindCandidateListings(ctx context.Context, s *Session) ([]Listing, error)
	// OpenListing leaves the listing's detail page focused, in a new tab or in place.
	OpenListing(ctx context.Context, s *Session, l Listing) error
	FieldMapping(profile model.ResumeProfile) form.FieldMapping
	DropdownAnswers() form.DropdownAnswers
}

// ListingCloser is implemented by platforms that show listings in place and
// need to dismiss dialogs before the next listing.
type ListingCloser interface {
	CloseListing(ctx context.Context, s *Session)
}

// SessionStore persists platform cookies.
type SessionStore interface {
	HasSession(platform string) bool
	Load(platform string, driver browser.Driver) (bool, error)
	Save(platform string, driver browser.Driver) error
}

// ApplicationLog is the shared append-only application history.
type ApplicationLog interface {
	Record(r model.ApplicationRecord) model.ApplicationRecord
	Applied(platform, jobURL string) bool
}

// ListingResult 单个职位的结果
type ListingResult struct {
	Index   int
	Title   string
	URL     string
	Outcome Outcome
	Step    string
	Err     string
}

// RunResult 一次运行的结果
type RunResult struct {
	RunID       string
	Platform    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Transitions []State
	Listings    []ListingResult
	Records     []model.ApplicationRecord
	Stopped     bool
}

// Count 统计指定结果的数量
func (r *RunResult) Count(o Outcome) int {
	n := 0
	for _, l := range r.Listings {
		if l.Outcome == o {
			n++
		}
	}
	return n
}
